package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errInjected = errors.New("injected write failure")

// MemoryStore keeps the document in process memory. The document is held in
// its encoded form so callers never share slices with the store.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	retry RetryPolicy

	// failWrites makes the next n writes fail; used by tests.
	failWrites int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{retry: RetryPolicy{Retries: 3, Interval: time.Millisecond}}
}

// NewMemoryStoreFrom creates an in-memory store seeded with doc.
func NewMemoryStoreFrom(doc *Document) (*MemoryStore, error) {
	data, err := encodeDocument(doc)
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore()
	s.data = data
	return s, nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(doc *Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	doc, err := decodeDocument(s.data)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(doc)
}

func (s *MemoryStore) Update(ctx context.Context, fn func(doc *Document) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retry.transact(ctx, "memory update", func() error {
		doc, err := decodeDocument(s.data)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return reject(err)
		}
		if s.failWrites > 0 {
			s.failWrites--
			return errInjected
		}
		data, err := encodeDocument(doc)
		if err != nil {
			return err
		}
		s.data = data
		return nil
	})
}
