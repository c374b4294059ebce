package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// ObjectReader reassembles stored objects into ordered byte streams.
type ObjectReader struct {
	store ChunkStore
}

func NewObjectReader(store ChunkStore) *ObjectReader {
	return &ObjectReader{store: store}
}

// Open returns a forward-only stream over the object's chunks in sequence
// order. It fails with ErrNotFound if no record is committed for the id.
// The stream is not restartable; call Open again to re-read.
func (r *ObjectReader) Open(ctx context.Context, objectID uuid.UUID) (*ObjectStream, error) {
	record, err := r.store.GetRecord(ctx, objectID)
	if err != nil {
		return nil, err
	}
	return &ObjectStream{
		ctx:    ctx,
		store:  r.store,
		record: record,
	}, nil
}

// ObjectStream is an io.ReadCloser over one object's chunks, fetched
// strictly in ascending sequence order. A transient storage failure on one
// chunk is retried a bounded number of times; if retries are exhausted the
// stream terminates with that error, so a consumer can tell a failed stream
// from an exhausted one.
type ObjectStream struct {
	ctx    context.Context
	store  ChunkStore
	record *ObjectRecord

	mu     sync.Mutex
	seq    int
	buf    []byte
	err    error
	closed bool
}

// Record returns the object record the stream was opened against.
func (s *ObjectStream) Record() *ObjectRecord {
	return s.record
}

func (s *ObjectStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("read from closed object stream")
	}
	if s.err != nil {
		return 0, s.err
	}

	for len(s.buf) == 0 {
		if s.seq >= s.record.ChunkCount {
			s.err = io.EOF
			return 0, io.EOF
		}
		seq := s.seq
		var payload []byte
		if err := retryStorage(s.ctx, func() error {
			var getErr error
			payload, getErr = s.store.GetChunk(s.ctx, s.record.ObjectID, seq)
			return getErr
		}); err != nil {
			s.err = fmt.Errorf("get chunk %d: %w", seq, err)
			return 0, s.err
		}
		s.seq++
		s.buf = payload
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Close stops further chunk fetches. It never fails.
func (s *ObjectStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buf = nil
	return nil
}
