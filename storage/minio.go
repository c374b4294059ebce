package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// MinioStore keeps chunks as bucket objects named
// <prefix>/<object-id>/<zero-padded seq> and the object record as
// <prefix>/<object-id>/record.json.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioStore(client *minio.Client, bucket, prefix string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *MinioStore) objectPrefix(objectID uuid.UUID) string {
	return path.Join(s.prefix, objectID.String())
}

func (s *MinioStore) chunkName(objectID uuid.UUID, seq int) string {
	return path.Join(s.objectPrefix(objectID), fmt.Sprintf("%08d.chunk", seq))
}

func (s *MinioStore) recordName(objectID uuid.UUID) string {
	return path.Join(s.objectPrefix(objectID), recordFileName)
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}

func (s *MinioStore) PutChunk(ctx context.Context, objectID uuid.UUID, seq int, payload []byte) error {
	name := s.chunkName(objectID, seq)

	// Chunks are written at most once per sequence number.
	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err == nil {
		return fmt.Errorf("%w: object %s seq %d", ErrDuplicateSequence, objectID, seq)
	} else if !isNoSuchKey(err) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	_, err := s.client.PutObject(ctx, s.bucket, name,
		bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *MinioStore) GetChunk(ctx context.Context, objectID uuid.UUID, seq int) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.chunkName(objectID, seq), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: object %s seq %d", ErrNotFound, objectID, seq)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return payload, nil
}

func (s *MinioStore) DeleteObjectChunks(ctx context.Context, objectID uuid.UUID) (int, error) {
	deleted := 0
	opts := minio.ListObjectsOptions{Prefix: s.objectPrefix(objectID) + "/", Recursive: true}
	for info := range s.client.ListObjects(ctx, s.bucket, opts) {
		if info.Err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrStorageUnavailable, info.Err)
		}
		isChunk := strings.HasSuffix(info.Key, ".chunk")
		if !isChunk && path.Base(info.Key) != recordFileName {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, info.Key, minio.RemoveObjectOptions{}); err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if isChunk {
			deleted++
		}
	}
	return deleted, nil
}

func (s *MinioStore) CommitRecord(ctx context.Context, record *ObjectRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.recordName(record.ObjectID),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *MinioStore) GetRecord(ctx context.Context, objectID uuid.UUID) (*ObjectRecord, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.recordName(objectID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
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

func (s *MinioStore) DeleteRecord(ctx context.Context, objectID uuid.UUID) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.recordName(objectID), minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
