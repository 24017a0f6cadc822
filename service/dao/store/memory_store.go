package store

import (
	"context"
	"sync"

	"github.com/viant/approver/service/dao"
)

// MemoryStore is a generic in-memory keyed store.
// It keeps entities of type *T mapped by a comparable key K.
// The key is obtained from the supplied keySelector function.
//
// Entities are copied on the way in and out (see WithCopier) so that callers
// can never mutate stored state without going through Update, which runs
// under the store lock and therefore gives compare-and-swap semantics.
type MemoryStore[K comparable, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	copier      func(*T) *T
}

// Option customises a MemoryStore.
type Option[K comparable, T any] func(*MemoryStore[K, T])

// WithCopier sets the function used to copy entities; a shallow copy is used
// by default.
func WithCopier[K comparable, T any](copier func(*T) *T) Option[K, T] {
	return func(s *MemoryStore[K, T]) { s.copier = copier }
}

// NewMemoryStore creates a new MemoryStore.
// keySelector extracts the entity key (usually the ID field) from a value.
func NewMemoryStore[K comparable, T any](keySelector func(*T) K, options ...Option[K, T]) *MemoryStore[K, T] {
	ret := &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
		copier: func(v *T) *T {
			c := *v
			return &c
		},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// Create inserts a record, failing with dao.ErrDuplicateID if the key exists.
func (s *MemoryStore[K, T]) Create(_ context.Context, v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; ok {
		return dao.ErrDuplicateID
	}
	s.records[key] = s.copier(v)
	return nil
}

// Load returns a copy of the record by key or dao.ErrNotFound.
func (s *MemoryStore[K, T]) Load(_ context.Context, key K) (*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil, dao.ErrNotFound
	}
	return s.copier(v), nil
}

// Update applies fn to a copy of the record while holding the write lock and
// stores the result only when fn succeeds.
func (s *MemoryStore[K, T]) Update(_ context.Context, key K, fn func(v *T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.records[key]
	if !ok {
		return dao.ErrNotFound
	}
	updated := s.copier(v)
	if err := fn(updated); err != nil {
		return err
	}
	s.records[key] = updated
	return nil
}

// Delete removes a record.
func (s *MemoryStore[K, T]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// List returns copies of the records accepted by filter (all when nil).
func (s *MemoryStore[K, T]) List(_ context.Context, filter func(*T) bool) ([]*T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*T, 0, len(s.records))
	for _, v := range s.records {
		if filter != nil && !filter(v) {
			continue
		}
		out = append(out, s.copier(v))
	}
	return out, nil
}
