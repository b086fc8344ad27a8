// Package memory provides an in-process storage.Storage. It backs the
// session scope and is the default local scope in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ebsalem/portal/storage"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Storage is a mutex-guarded map with lazy expiry
type Storage struct {
	mu    sync.RWMutex
	items map[string]entry
	now   func() time.Time
}

// New creates an empty in-memory storage
func New() *Storage {
	return &Storage{
		items: make(map[string]entry),
		now:   time.Now,
	}
}

var _ storage.Storage = (*Storage)(nil)

// Get returns a copy of the stored value
func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrNotFound
	}
	if e.expired(s.now()) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, storage.ErrNotFound
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value
func (s *Storage) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.items[key] = e
	s.mu.Unlock()
	return nil
}

// Delete removes keys
func (s *Storage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.items, k)
	}
	s.mu.Unlock()
	return nil
}

// Close is a no-op
func (s *Storage) Close() error {
	return nil
}
