package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an object record or chunk does not exist.
	ErrNotFound = errors.New("object not found")
	// ErrStorageUnavailable marks a transient backend failure. Callers may
	// retry the single operation; ObjectWriter and ObjectReader do so with
	// bounded backoff.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrDuplicateSequence is returned when a chunk with the same object id
	// and sequence number was already persisted. Chunks are immutable.
	ErrDuplicateSequence = errors.New("duplicate chunk sequence")
	// ErrInvalidContentType is returned before any chunk is written when the
	// declared content type is not on the allow-list.
	ErrInvalidContentType = errors.New("invalid content type")
	// ErrSizeLimitExceeded is returned after rollback when an upload grows
	// past the configured maximum object size.
	ErrSizeLimitExceeded = errors.New("size limit exceeded")
)

// ObjectRecord is the durable metadata of a stored object. It is committed
// only after every chunk of the object is persisted, so a record that is
// visible is always complete.
type ObjectRecord struct {
	ObjectID    uuid.UUID `json:"object_id"`
	TotalSize   int64     `json:"total_size"`
	ChunkCount  int       `json:"chunk_count"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChunkStore persists fixed-size binary chunks keyed by object id and
// sequence number, plus one ObjectRecord per object. Implementations must be
// safe for concurrent use; writes to the same object+sequence pair are
// rejected with ErrDuplicateSequence rather than serialized.
type ChunkStore interface {
	// PutChunk persists one chunk. The chunk is durable when PutChunk
	// returns nil.
	PutChunk(ctx context.Context, objectID uuid.UUID, seq int, payload []byte) error

	// GetChunk returns the payload of one chunk.
	GetChunk(ctx context.Context, objectID uuid.UUID, seq int) ([]byte, error)

	// DeleteObjectChunks removes every chunk of an object and returns how
	// many were deleted. Deleting an absent object returns (0, nil).
	DeleteObjectChunks(ctx context.Context, objectID uuid.UUID) (int, error)

	// CommitRecord makes the object record durable and visible to readers.
	CommitRecord(ctx context.Context, record *ObjectRecord) error

	// GetRecord returns the committed record, or ErrNotFound.
	GetRecord(ctx context.Context, objectID uuid.UUID) (*ObjectRecord, error)

	// DeleteRecord removes the record. Deleting an absent record is not an
	// error.
	DeleteRecord(ctx context.Context, objectID uuid.UUID) error
}
