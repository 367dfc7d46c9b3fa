package kv

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// ErrNotFound is returned by a Store for ids it does not hold.
var ErrNotFound = errors.New("item not found")

// Store persists JSON values by id.
type Store interface {
	Get(ctx context.Context, id string) (ldvalue.Value, error)
	Put(ctx context.Context, id string, value ldvalue.Value) error
	// Delete reports whether the id was present.
	Delete(ctx context.Context, id string) (bool, error)
}

// MemoryStore is a Store that keeps everything in a map.
type MemoryStore struct {
	items map[string]ldvalue.Value
	lock  sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]ldvalue.Value)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (ldvalue.Value, error) {
	s.lock.RLock()
	v, ok := s.items[id]
	s.lock.RUnlock()
	if !ok {
		return ldvalue.Null(), ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Put(ctx context.Context, id string, value ldvalue.Value) error {
	s.lock.Lock()
	s.items[id] = value
	s.lock.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	_, ok := s.items[id]
	delete(s.items, id)
	return ok, nil
}
