// Package file provides a storage.Storage persisted as a single JSON file.
// It is the CLI's default local scope so a login survives across commands.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ebsalem/portal/storage"
)

type fileEntry struct {
	Value     []byte     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Storage reads and rewrites the whole file on every call. The data set is a
// handful of small keys.
type Storage struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// New returns a storage backed by path. The parent directory is created on first write.
func New(path string) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("storage file path is required")
	}
	return &Storage{path: path, now: time.Now}, nil
}

// DefaultPath returns <user config dir>/ebsalem/storage.json
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "ebsalem", "storage.json"), nil
}

var _ storage.Storage = (*Storage)(nil)

// Get returns the value stored under key
func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	e, ok := entries[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if e.ExpiresAt != nil && !s.now().Before(*e.ExpiresAt) {
		delete(entries, key)
		if err := s.save(entries); err != nil {
			return nil, err
		}
		return nil, storage.ErrNotFound
	}
	return e.Value, nil
}

// Set stores value under key
func (s *Storage) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	e := fileEntry{Value: value}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		e.ExpiresAt = &exp
	}
	entries[key] = e
	return s.save(entries)
}

// Delete removes keys
func (s *Storage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := entries[k]; ok {
			delete(entries, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(entries)
}

// Close is a no-op
func (s *Storage) Close() error {
	return nil
}

func (s *Storage) load() (map[string]fileEntry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]fileEntry), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read storage file: %w", err)
	}

	entries := make(map[string]fileEntry)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode storage file %s: %w", s.path, err)
	}
	return entries, nil
}

// save writes to a temp file and renames it over the target
func (s *Storage) save(entries map[string]fileEntry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".storage-*.json")
	if err != nil {
		return fmt.Errorf("create temp storage file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write storage file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod storage file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close storage file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}
