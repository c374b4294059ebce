package service

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"clipstream/dto"
	"clipstream/entities"
	"clipstream/repository"
	"clipstream/storage"
	"clipstream/transcode"
)

func newTestService(t *testing.T) (ClipService, *memoryRepo, storage.ChunkStore) {
	t.Helper()
	svc, repo, store, _ := newTestServiceWithDir(t)
	return svc, repo, store
}

func newTestServiceWithDir(t *testing.T) (ClipService, *memoryRepo, storage.ChunkStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFSStore(dir)
	require.NoError(t, err)

	repo := newMemoryRepo()
	reader := storage.NewObjectReader(store)
	svc := NewClipService(
		repo,
		storage.NewObjectWriter(store, 1024, 0),
		reader,
		storage.NewObjectDeleter(store),
		transcode.NewPipeline(reader, transcode.EncoderConfig{Command: "cat", ContentType: "application/octet-stream"}),
		nil,
	)
	return svc, repo, store, dir
}

func testUser() *entities.User {
	return &entities.User{ID: uuid.New(), Username: "uploader", Email: "uploader@example.com"}
}

func TestClipServiceUploadAndRawPlayback(t *testing.T) {
	ctx := context.Background()
	svc, repo, store := newTestService(t)
	owner := testUser()
	input := bytes.Repeat([]byte("clip data "), 500)

	clip, err := svc.Upload(ctx, owner, bytes.NewReader(input), "video/mp4", UploadMeta{
		Title:        "my clip",
		Tags:         []string{"demo"},
		IsPublic:     true,
		OriginalName: "clip.mp4",
	})
	require.NoError(t, err)
	require.Equal(t, owner.ID, clip.UserID)
	require.Equal(t, int64(len(input)), clip.Size)
	require.NotNil(t, repo.clips[clip.ID])

	record, err := store.GetRecord(ctx, clip.ObjectID)
	require.NoError(t, err)
	require.Equal(t, int64(len(input)), record.TotalSize)

	var sink bytes.Buffer
	require.NoError(t, svc.StreamRaw(ctx, clip, &sink))
	require.Equal(t, input, sink.Bytes())
}

func TestClipServiceUploadRollsBackOnMetadataFailure(t *testing.T) {
	ctx := context.Background()
	svc, repo, _, dir := newTestServiceWithDir(t)
	repo.failCreateClip = true

	_, err := svc.Upload(ctx, testUser(), bytes.NewReader([]byte("data")), "video/mp4", UploadMeta{Title: "t"})
	require.Error(t, err)
	require.Empty(t, repo.clips)

	// The stored object must not be orphaned behind the failed row.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestClipServiceVisibility(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	owner := testUser()
	stranger := testUser()

	clip, err := svc.Upload(ctx, owner, bytes.NewReader([]byte("data")), "video/mp4", UploadMeta{
		Title:    "private",
		IsPublic: false,
	})
	require.NoError(t, err)

	_, err = svc.Get(ctx, clip.ID, nil)
	require.ErrorIs(t, err, ErrAccessDenied)
	_, err = svc.Get(ctx, clip.ID, stranger)
	require.ErrorIs(t, err, ErrAccessDenied)

	got, err := svc.Get(ctx, clip.ID, owner)
	require.NoError(t, err)
	require.Equal(t, int64(1), got.Views)
}

func TestClipServiceGetCountsViews(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newTestService(t)
	owner := testUser()

	clip, err := svc.Upload(ctx, owner, bytes.NewReader([]byte("data")), "video/mp4", UploadMeta{
		Title:    "public",
		IsPublic: true,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Get(ctx, clip.ID, nil)
		require.NoError(t, err)
	}
	require.Equal(t, int64(3), repo.clips[clip.ID].Views)
}

func TestClipServiceUpdateOwnership(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	owner := testUser()

	clip, err := svc.Upload(ctx, owner, bytes.NewReader([]byte("data")), "video/mp4", UploadMeta{
		Title:    "before",
		IsPublic: true,
	})
	require.NoError(t, err)

	title := "after"
	_, err = svc.Update(ctx, clip.ID, testUser(), &dto.UpdateClipRequest{Title: &title})
	require.ErrorIs(t, err, ErrAccessDenied)

	updated, err := svc.Update(ctx, clip.ID, owner, &dto.UpdateClipRequest{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "after", updated.Title)
}

func TestClipServiceDelete(t *testing.T) {
	ctx := context.Background()
	svc, repo, store := newTestService(t)
	owner := testUser()

	clip, err := svc.Upload(ctx, owner, bytes.NewReader(bytes.Repeat([]byte("x"), 3000)), "video/mp4", UploadMeta{
		Title:    "doomed",
		IsPublic: true,
	})
	require.NoError(t, err)

	_, err = svc.Delete(ctx, clip.ID, testUser())
	require.ErrorIs(t, err, ErrAccessDenied)

	deleted, err := svc.Delete(ctx, clip.ID, owner)
	require.NoError(t, err)
	require.Equal(t, 3, deleted)
	require.Nil(t, repo.clips[clip.ID])

	_, err = store.GetRecord(ctx, clip.ObjectID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Delete(ctx, clip.ID, owner)
	require.ErrorIs(t, err, ErrClipNotFound)
}

func TestClipServiceTranscodedPlayback(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	input := bytes.Repeat([]byte("frame"), 2000)

	clip, err := svc.Upload(ctx, testUser(), bytes.NewReader(input), "video/mp4", UploadMeta{
		Title:    "playable",
		IsPublic: true,
	})
	require.NoError(t, err)

	var sink bytes.Buffer
	require.NoError(t, svc.StreamTranscoded(ctx, clip, &sink))
	require.Equal(t, input, sink.Bytes())
}

// memoryRepo is an in-memory repository.Repository for service tests.
type memoryRepo struct {
	mu             sync.Mutex
	users          map[uuid.UUID]*entities.User
	clips          map[uuid.UUID]*entities.Clip
	failCreateClip bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users: make(map[uuid.UUID]*entities.User),
		clips: make(map[uuid.UUID]*entities.Clip),
	}
}

func (m *memoryRepo) Transaction(ctx context.Context, callback func(ctx context.Context) error, _ ...*sql.TxOptions) error {
	return callback(ctx)
}

func (m *memoryRepo) GetDB() *gorm.DB { return nil }

func (m *memoryRepo) AutoMigrate() error { return nil }

func (m *memoryRepo) CreateUser(_ context.Context, user *entities.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *memoryRepo) FindUserByID(_ context.Context, id uuid.UUID) (*entities.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepo) FindUserByEmail(_ context.Context, email string) (*entities.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepo) UserExists(_ context.Context, username, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username || user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) CreateClip(_ context.Context, clip *entities.Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateClip {
		return fmt.Errorf("injected create failure")
	}
	copied := *clip
	m.clips[clip.ID] = &copied
	return nil
}

func (m *memoryRepo) FindClipByID(_ context.Context, id uuid.UUID) (*entities.Clip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if clip, ok := m.clips[id]; ok {
		copied := *clip
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memoryRepo) listFiltered(filter func(*entities.Clip) bool, page, limit int) ([]*entities.Clip, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*entities.Clip
	for _, clip := range m.clips {
		if filter(clip) {
			copied := *clip
			matched = append(matched, &copied)
		}
	}
	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *memoryRepo) ListVisibleClips(_ context.Context, viewerID *uuid.UUID, page, limit int) ([]*entities.Clip, int64, error) {
	return m.listFiltered(func(clip *entities.Clip) bool {
		return clip.IsPublic || (viewerID != nil && clip.UserID == *viewerID)
	}, page, limit)
}

func (m *memoryRepo) ListUserClips(_ context.Context, userID uuid.UUID, viewerID *uuid.UUID, page, limit int) ([]*entities.Clip, int64, error) {
	return m.listFiltered(func(clip *entities.Clip) bool {
		if clip.UserID != userID {
			return false
		}
		return clip.IsPublic || (viewerID != nil && clip.UserID == *viewerID)
	}, page, limit)
}

func (m *memoryRepo) ListOwnClips(_ context.Context, userID uuid.UUID, page, limit int) ([]*entities.Clip, int64, error) {
	return m.listFiltered(func(clip *entities.Clip) bool {
		return clip.UserID == userID
	}, page, limit)
}

func (m *memoryRepo) SaveClip(_ context.Context, clip *entities.Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *clip
	m.clips[clip.ID] = &copied
	return nil
}

func (m *memoryRepo) DeleteClip(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clips, id)
	return nil
}

func (m *memoryRepo) IncrementClipViews(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if clip, ok := m.clips[id]; ok {
		clip.Views++
	}
	return nil
}

var _ repository.Repository = (*memoryRepo)(nil)
