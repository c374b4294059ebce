package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const recordFileName = "record.json"

// FSStore keeps chunks as individual files under a base directory, one
// subdirectory per object:
//
//	<base>/<object-id>/00000000.chunk
//	<base>/<object-id>/00000001.chunk
//	<base>/<object-id>/record.json
//
// Chunk files are written to a temporary name, fsynced, then linked into
// place; the link fails if the sequence number was already written, which is
// what enforces chunk immutability under concurrent writers.
type FSStore struct {
	base string
}

// NewFSStore creates the base directory if needed and returns a store
// rooted at it.
func NewFSStore(base string) (*FSStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FSStore{base: base}, nil
}

func (s *FSStore) objectDir(objectID uuid.UUID) string {
	return filepath.Join(s.base, objectID.String())
}

func (s *FSStore) chunkPath(objectID uuid.UUID, seq int) string {
	return filepath.Join(s.objectDir(objectID), fmt.Sprintf("%08d.chunk", seq))
}

func (s *FSStore) PutChunk(ctx context.Context, objectID uuid.UUID, seq int, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.objectDir(objectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, ".chunk-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// Link fails with EEXIST if this sequence number was already committed.
	if err := os.Link(tmp.Name(), s.chunkPath(objectID, seq)); err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: object %s seq %d", ErrDuplicateSequence, objectID, seq)
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *FSStore) GetChunk(ctx context.Context, objectID uuid.UUID, seq int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(s.chunkPath(objectID, seq))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: object %s seq %d", ErrNotFound, objectID, seq)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return payload, nil
}

func (s *FSStore) DeleteObjectChunks(ctx context.Context, objectID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dir := s.objectDir(objectID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	deleted := 0
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".chunk") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		deleted++
	}
	// Drop the directory once it holds nothing but leftovers; a stale
	// record.json is removed with it.
	os.RemoveAll(dir)
	return deleted, nil
}

func (s *FSStore) CommitRecord(ctx context.Context, record *ObjectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.objectDir(record.ObjectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tmp := filepath.Join(dir, ".record.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, recordFileName)); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *FSStore) GetRecord(ctx context.Context, objectID uuid.UUID) (*ObjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.objectDir(objectID), recordFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: object %s", ErrNotFound, objectID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	record := &ObjectRecord{}
	if err := json.Unmarshal(data, record); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return record, nil
}

func (s *FSStore) DeleteRecord(ctx context.Context, objectID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.objectDir(objectID), recordFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
