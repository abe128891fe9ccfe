// Package memory implements blob storage in process memory for tests and
// single-process development setups.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// Store keeps blobs in a map keyed by their mem:// locator.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewStore creates an empty in-memory blob store.
func NewStore() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under the key and returns its mem:// locator.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if key == "" {
		return "", fmt.Errorf("blob key must not be empty")
	}

	locator := "mem://" + key
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blobs[locator] = buf
	s.mu.Unlock()
	return locator, nil
}

// Get returns a copy of the blob behind the locator.
func (s *Store) Get(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, ok := s.blobs[locator]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no blob at %q", locator)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
