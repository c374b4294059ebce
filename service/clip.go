package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"clipstream/dto"
	"clipstream/entities"
	"clipstream/pkg/rabbitmq"
	"clipstream/repository"
	"clipstream/storage"
	"clipstream/transcode"
)

var (
	ErrClipNotFound = errors.New("clip not found")
	ErrAccessDenied = errors.New("access denied")
)

// UploadMeta carries the user-supplied descriptive fields of an upload.
type UploadMeta struct {
	Title        string
	Description  string
	Tags         []string
	IsPublic     bool
	OriginalName string
}

// ClipService owns the clip lifecycle: it drives the chunked object store
// and the transcode pipeline, and keeps the metadata rows consistent with
// the stored objects.
type ClipService interface {
	Upload(ctx context.Context, owner *entities.User, input io.Reader, contentType string, meta UploadMeta) (*entities.Clip, error)
	Get(ctx context.Context, clipID uuid.UUID, viewer *entities.User) (*entities.Clip, error)
	List(ctx context.Context, viewer *entities.User, page, limit int) ([]*entities.Clip, int64, error)
	ListByUser(ctx context.Context, userID uuid.UUID, viewer *entities.User, page, limit int) ([]*entities.Clip, int64, error)
	ListOwn(ctx context.Context, owner *entities.User, page, limit int) ([]*entities.Clip, int64, error)
	Resolve(ctx context.Context, clipID uuid.UUID, viewer *entities.User) (*entities.Clip, error)
	Update(ctx context.Context, clipID uuid.UUID, owner *entities.User, req *dto.UpdateClipRequest) (*entities.Clip, error)
	Delete(ctx context.Context, clipID uuid.UUID, owner *entities.User) (int, error)

	StreamTranscoded(ctx context.Context, clip *entities.Clip, sink io.Writer) error
	StreamRaw(ctx context.Context, clip *entities.Clip, sink io.Writer) error
	OutputContentType() string
}

type clipService struct {
	repo      repository.Repository
	writer    *storage.ObjectWriter
	reader    *storage.ObjectReader
	deleter   *storage.ObjectDeleter
	pipeline  *transcode.Pipeline
	publisher *rabbitmq.Publisher
}

func NewClipService(
	repo repository.Repository,
	writer *storage.ObjectWriter,
	reader *storage.ObjectReader,
	deleter *storage.ObjectDeleter,
	pipeline *transcode.Pipeline,
	publisher *rabbitmq.Publisher,
) ClipService {
	return &clipService{
		repo:      repo,
		writer:    writer,
		reader:    reader,
		deleter:   deleter,
		pipeline:  pipeline,
		publisher: publisher,
	}
}

func (s *clipService) Upload(ctx context.Context, owner *entities.User, input io.Reader, contentType string, meta UploadMeta) (*entities.Clip, error) {
	record, err := s.writer.Write(ctx, input, contentType)
	if err != nil {
		return nil, err
	}

	clip := &entities.Clip{
		ID:           uuid.New(),
		UserID:       owner.ID,
		ObjectID:     record.ObjectID,
		OriginalName: meta.OriginalName,
		Title:        meta.Title,
		Description:  meta.Description,
		Tags:         meta.Tags,
		ContentType:  record.ContentType,
		Size:         record.TotalSize,
		IsPublic:     meta.IsPublic,
	}
	if err := s.repo.CreateClip(ctx, clip); err != nil {
		// The metadata row failed, so the stored object would be orphaned.
		if _, delErr := s.deleter.Delete(ctx, record.ObjectID); delErr != nil {
			zerolog.Ctx(ctx).Error().Err(delErr).
				Str("object_id", record.ObjectID.String()).
				Msg("failed to clean up object after metadata failure")
		}
		return nil, fmt.Errorf("create clip row: %w", err)
	}

	s.publisher.Publish(ctx, rabbitmq.RoutingKeyClipUploaded, dto.ClipEvent{
		ClipID:   clip.ID,
		UserID:   clip.UserID,
		ObjectID: clip.ObjectID,
		Size:     clip.Size,
		At:       time.Now().UTC(),
	})
	return clip, nil
}

// Resolve looks up a clip and enforces visibility without counting a view.
// Playback handlers use it before opening a stream.
func (s *clipService) Resolve(ctx context.Context, clipID uuid.UUID, viewer *entities.User) (*entities.Clip, error) {
	clip, err := s.repo.FindClipByID(ctx, clipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClipNotFound
		}
		return nil, err
	}
	if !clip.IsPublic && (viewer == nil || viewer.ID != clip.UserID) {
		return nil, ErrAccessDenied
	}
	return clip, nil
}

func (s *clipService) Get(ctx context.Context, clipID uuid.UUID, viewer *entities.User) (*entities.Clip, error) {
	clip, err := s.Resolve(ctx, clipID, viewer)
	if err != nil {
		return nil, err
	}

	if err := s.repo.IncrementClipViews(ctx, clipID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("clip_id", clipID.String()).Msg("failed to count view")
	} else {
		clip.Views++
	}
	return clip, nil
}

func (s *clipService) List(ctx context.Context, viewer *entities.User, page, limit int) ([]*entities.Clip, int64, error) {
	return s.repo.ListVisibleClips(ctx, viewerID(viewer), page, limit)
}

func (s *clipService) ListByUser(ctx context.Context, userID uuid.UUID, viewer *entities.User, page, limit int) ([]*entities.Clip, int64, error) {
	return s.repo.ListUserClips(ctx, userID, viewerID(viewer), page, limit)
}

func (s *clipService) ListOwn(ctx context.Context, owner *entities.User, page, limit int) ([]*entities.Clip, int64, error) {
	return s.repo.ListOwnClips(ctx, owner.ID, page, limit)
}

func (s *clipService) Update(ctx context.Context, clipID uuid.UUID, owner *entities.User, req *dto.UpdateClipRequest) (*entities.Clip, error) {
	clip, err := s.ownedClip(ctx, clipID, owner)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		clip.Title = *req.Title
	}
	if req.Description != nil {
		clip.Description = *req.Description
	}
	if req.Tags != nil {
		clip.Tags = *req.Tags
	}
	if req.IsPublic != nil {
		clip.IsPublic = *req.IsPublic
	}

	if err := s.repo.SaveClip(ctx, clip); err != nil {
		return nil, err
	}
	return clip, nil
}

func (s *clipService) Delete(ctx context.Context, clipID uuid.UUID, owner *entities.User) (int, error) {
	clip, err := s.ownedClip(ctx, clipID, owner)
	if err != nil {
		return 0, err
	}

	// Object first: a re-run after a crash finds the row still present and
	// the idempotent object delete reports zero chunks.
	deleted, err := s.deleter.Delete(ctx, clip.ObjectID)
	if err != nil {
		return deleted, err
	}
	if err := s.repo.DeleteClip(ctx, clip.ID); err != nil {
		return deleted, err
	}

	s.publisher.Publish(ctx, rabbitmq.RoutingKeyClipDeleted, dto.ClipEvent{
		ClipID:   clip.ID,
		UserID:   clip.UserID,
		ObjectID: clip.ObjectID,
		Size:     clip.Size,
		At:       time.Now().UTC(),
	})
	return deleted, nil
}

// StreamTranscoded re-encodes the stored object through the external
// encoder into sink.
func (s *clipService) StreamTranscoded(ctx context.Context, clip *entities.Clip, sink io.Writer) error {
	return s.pipeline.Stream(ctx, clip.ObjectID, sink)
}

// StreamRaw copies the reassembled object bytes into sink unmodified.
func (s *clipService) StreamRaw(ctx context.Context, clip *entities.Clip, sink io.Writer) error {
	stream, err := s.reader.Open(ctx, clip.ObjectID)
	if err != nil {
		return err
	}
	defer stream.Close()

	_, err = io.Copy(sink, stream)
	return err
}

func (s *clipService) OutputContentType() string {
	return s.pipeline.ContentType()
}

func (s *clipService) ownedClip(ctx context.Context, clipID uuid.UUID, owner *entities.User) (*entities.Clip, error) {
	clip, err := s.repo.FindClipByID(ctx, clipID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClipNotFound
		}
		return nil, err
	}
	if clip.UserID != owner.ID {
		return nil, ErrAccessDenied
	}
	return clip, nil
}

func viewerID(viewer *entities.User) *uuid.UUID {
	if viewer == nil {
		return nil
	}
	id := viewer.ID
	return &id
}
