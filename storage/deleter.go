package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ObjectDeleter removes an object's record and chunks. Deletion is
// idempotent: callers may retry after an ambiguous failure and the repeat
// reports zero chunks deleted instead of an error.
type ObjectDeleter struct {
	store ChunkStore
}

func NewObjectDeleter(store ChunkStore) *ObjectDeleter {
	return &ObjectDeleter{store: store}
}

// Delete removes the record first so the object stops being visible, then
// the chunks. It returns how many chunks were deleted; (0, nil) when there
// was nothing to delete.
func (d *ObjectDeleter) Delete(ctx context.Context, objectID uuid.UUID) (int, error) {
	if err := retryStorage(ctx, func() error {
		return d.store.DeleteRecord(ctx, objectID)
	}); err != nil {
		return 0, fmt.Errorf("delete record: %w", err)
	}

	var deleted int
	if err := retryStorage(ctx, func() error {
		var delErr error
		deleted, delErr = d.store.DeleteObjectChunks(ctx, objectID)
		return delErr
	}); err != nil {
		return deleted, fmt.Errorf("delete chunks: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("object_id", objectID.String()).
		Int("chunks_deleted", deleted).
		Msg("object deleted")
	return deleted, nil
}
