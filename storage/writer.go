package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultChunkSize is the nominal chunk payload size. The last chunk of
	// an object may be smaller.
	DefaultChunkSize = 2 << 20

	// storageRetries bounds per-operation retries on ErrStorageUnavailable.
	storageRetries = 3
)

// AllowedContentTypes lists the upload content types accepted by
// ObjectWriter.
var AllowedContentTypes = map[string]bool{
	"video/mp4":       true,
	"video/mpeg":      true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/webm":      true,
	"video/ogg":       true,
}

// retryStorage runs op, retrying with exponential backoff while it fails
// with ErrStorageUnavailable. Any other error aborts immediately.
func retryStorage(ctx context.Context, op func() error) error {
	wrapped := func() (struct{}, error) {
		if err := op(); err != nil {
			if errors.Is(err, ErrStorageUnavailable) {
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	_, err := backoff.Retry(ctx, wrapped, backoff.WithBackOff(bo), backoff.WithMaxTries(storageRetries))
	return err
}

// ObjectWriter splits an incoming byte stream into fixed-size chunks and
// persists them through a ChunkStore. The object record is committed only
// after every chunk is durable, so a visible object is always complete.
type ObjectWriter struct {
	store     ChunkStore
	chunkSize int
	maxSize   int64
}

func NewObjectWriter(store ChunkStore, chunkSize int, maxSize int64) *ObjectWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ObjectWriter{store: store, chunkSize: chunkSize, maxSize: maxSize}
}

// Write consumes r to EOF and returns the committed record. On any failure
// (including size overflow and cancellation) every chunk already written is
// deleted before the error is returned; no partial object is ever visible.
func (w *ObjectWriter) Write(ctx context.Context, r io.Reader, contentType string) (*ObjectRecord, error) {
	if !AllowedContentTypes[contentType] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentType, contentType)
	}

	objectID := uuid.New()
	logger := zerolog.Ctx(ctx).With().Str("object_id", objectID.String()).Logger()

	record, err := w.writeChunks(ctx, objectID, r, contentType)
	if err != nil {
		w.rollback(ctx, objectID, &logger)
		return nil, err
	}

	logger.Info().
		Int64("total_size", record.TotalSize).
		Int("chunk_count", record.ChunkCount).
		Msg("object committed")
	return record, nil
}

func (w *ObjectWriter) writeChunks(ctx context.Context, objectID uuid.UUID, r io.Reader, contentType string) (*ObjectRecord, error) {
	var (
		buf       = make([]byte, w.chunkSize)
		seq       = 0
		totalSize int64
	)

	for {
		n, readErr := io.ReadFull(r, buf)
		if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read upload stream: %w", readErr)
		}

		if n > 0 {
			totalSize += int64(n)
			if w.maxSize > 0 && totalSize > w.maxSize {
				return nil, fmt.Errorf("%w: limit %d bytes", ErrSizeLimitExceeded, w.maxSize)
			}

			payload := buf[:n]
			putSeq := seq
			if err := retryStorage(ctx, func() error {
				return w.store.PutChunk(ctx, objectID, putSeq, payload)
			}); err != nil {
				return nil, fmt.Errorf("put chunk %d: %w", putSeq, err)
			}
			seq++
		}

		if readErr != nil {
			break
		}
	}

	record := &ObjectRecord{
		ObjectID:    objectID,
		TotalSize:   totalSize,
		ChunkCount:  seq,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	if err := retryStorage(ctx, func() error {
		return w.store.CommitRecord(ctx, record)
	}); err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	return record, nil
}

// rollback removes whatever chunks the aborted upload left behind. It runs
// on a detached context so cleanup still happens when the upload itself was
// cancelled.
func (w *ObjectWriter) rollback(ctx context.Context, objectID uuid.UUID, logger *zerolog.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if _, err := w.store.DeleteObjectChunks(cleanupCtx, objectID); err != nil {
		logger.Error().Err(err).Msg("failed to clean up chunks of aborted upload")
	}
}
