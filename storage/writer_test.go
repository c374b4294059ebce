package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.New(rand.NewSource(1)).Read(data)
	require.NoError(t, err)
	return data
}

func TestObjectWriterRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		chunkSize  int
		wantChunks int
	}{
		{name: "empty input", size: 0, chunkSize: 1024, wantChunks: 0},
		{name: "smaller than one chunk", size: 100, chunkSize: 1024, wantChunks: 1},
		{name: "exactly one chunk", size: 1024, chunkSize: 1024, wantChunks: 1},
		{name: "not a chunk multiple", size: 2500, chunkSize: 1024, wantChunks: 3},
		{name: "exact multiple", size: 4096, chunkSize: 1024, wantChunks: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newTestStore(t)
			writer := NewObjectWriter(store, tt.chunkSize, 0)
			input := randomBytes(t, tt.size)

			record, err := writer.Write(ctx, bytes.NewReader(input), "video/mp4")
			require.NoError(t, err)
			require.Equal(t, int64(tt.size), record.TotalSize)
			require.Equal(t, tt.wantChunks, record.ChunkCount)
			require.Equal(t, "video/mp4", record.ContentType)

			stream, err := NewObjectReader(store).Open(ctx, record.ObjectID)
			require.NoError(t, err)
			defer stream.Close()

			output, err := io.ReadAll(stream)
			require.NoError(t, err)
			require.Equal(t, input, output)
		})
	}
}

func TestObjectWriterFiveMegabyteScenario(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	chunkSize := 2 << 20
	writer := NewObjectWriter(store, chunkSize, 0)
	input := randomBytes(t, 5<<20)

	record, err := writer.Write(ctx, bytes.NewReader(input), "video/mp4")
	require.NoError(t, err)
	require.Equal(t, int64(5_242_880), record.TotalSize)
	require.Equal(t, 3, record.ChunkCount)

	// 2 MiB, 2 MiB, then the 1 MiB remainder.
	for seq, want := range []int{chunkSize, chunkSize, 1 << 20} {
		payload, err := store.GetChunk(ctx, record.ObjectID, seq)
		require.NoError(t, err)
		require.Len(t, payload, want)
	}
}

func TestObjectWriterSequenceNumbersContiguous(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	writer := NewObjectWriter(store, 512, 0)

	record, err := writer.Write(ctx, bytes.NewReader(randomBytes(t, 2048+37)), "video/webm")
	require.NoError(t, err)
	require.Equal(t, 5, record.ChunkCount)

	for seq := 0; seq < record.ChunkCount; seq++ {
		_, err := store.GetChunk(ctx, record.ObjectID, seq)
		require.NoError(t, err, "chunk %d must exist", seq)
	}
	_, err = store.GetChunk(ctx, record.ObjectID, record.ChunkCount)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestObjectWriterRejectsContentType(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	writer := NewObjectWriter(store, 1024, 0)

	reader := &countingReader{r: bytes.NewReader(randomBytes(t, 100))}
	_, err := writer.Write(ctx, reader, "application/pdf")
	require.ErrorIs(t, err, ErrInvalidContentType)

	// Fail fast: nothing was read from the input.
	require.Zero(t, reader.n)
}

func TestObjectWriterSizeLimitRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	writer := NewObjectWriter(store, 1024, 3000)

	_, err := writer.Write(ctx, bytes.NewReader(randomBytes(t, 5000)), "video/mp4")
	require.ErrorIs(t, err, ErrSizeLimitExceeded)

	// No record and no chunks survive an oversized upload. The id is not
	// exposed on failure, so inspect the whole store.
	deleted, err := (&probeStore{FSStore: store}).countAllChunks(ctx)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestObjectWriterInputErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	writer := NewObjectWriter(store, 512, 0)

	input := io.MultiReader(bytes.NewReader(randomBytes(t, 2048)), &failingReader{})
	_, err := writer.Write(ctx, input, "video/mp4")
	require.Error(t, err)

	count, err := (&probeStore{FSStore: store}).countAllChunks(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestObjectWriterRetriesTransientPutFailures(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	flaky := &flakyStore{ChunkStore: store, failPuts: 2}
	writer := NewObjectWriter(flaky, 1024, 0)
	input := randomBytes(t, 2048)

	record, err := writer.Write(ctx, bytes.NewReader(input), "video/mp4")
	require.NoError(t, err)
	require.Equal(t, 2, record.ChunkCount)

	stream, err := NewObjectReader(store).Open(ctx, record.ObjectID)
	require.NoError(t, err)
	defer stream.Close()
	output, err := io.ReadAll(stream)
	require.NoError(t, err)
	require.Equal(t, input, output)
}

func TestObjectWriterGivesUpAfterBoundedRetries(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	flaky := &flakyStore{ChunkStore: store, failPuts: 1000}
	writer := NewObjectWriter(flaky, 1024, 0)

	_, err := writer.Write(ctx, bytes.NewReader(randomBytes(t, 512)), "video/mp4")
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

// flakyStore fails the first failPuts PutChunk calls with
// ErrStorageUnavailable, then delegates.
type flakyStore struct {
	ChunkStore
	mu       sync.Mutex
	failPuts int
}

func (s *flakyStore) PutChunk(ctx context.Context, objectID uuid.UUID, seq int, payload []byte) error {
	s.mu.Lock()
	shouldFail := s.failPuts > 0
	if shouldFail {
		s.failPuts--
	}
	s.mu.Unlock()
	if shouldFail {
		return fmt.Errorf("%w: injected", ErrStorageUnavailable)
	}
	return s.ChunkStore.PutChunk(ctx, objectID, seq, payload)
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, fmt.Errorf("injected input failure")
}

// probeStore walks the whole filesystem store counting persisted chunks.
type probeStore struct {
	*FSStore
}

func (p *probeStore) countAllChunks(_ context.Context) (int, error) {
	count := 0
	err := filepath.WalkDir(p.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".chunk") {
			count++
		}
		return nil
	})
	return count, err
}
