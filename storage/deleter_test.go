package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestObjectDeleterRemovesRecordAndChunks(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	record := writeTestObject(t, store, randomBytes(t, 2500), 1000)

	deleted, err := NewObjectDeleter(store).Delete(ctx, record.ObjectID)
	require.NoError(t, err)
	require.Equal(t, 3, deleted)

	_, err = store.GetRecord(ctx, record.ObjectID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetChunk(ctx, record.ObjectID, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestObjectDeleterIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	record := writeTestObject(t, store, randomBytes(t, 100), 50)
	deleter := NewObjectDeleter(store)

	deleted, err := deleter.Delete(ctx, record.ObjectID)
	require.NoError(t, err)
	require.Positive(t, deleted)

	// A retried delete reports nothing to do rather than failing.
	deleted, err = deleter.Delete(ctx, record.ObjectID)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestObjectDeleterUnknownObject(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	deleted, err := NewObjectDeleter(store).Delete(ctx, uuid.New())
	require.NoError(t, err)
	require.Zero(t, deleted)
}
