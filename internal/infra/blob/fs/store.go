// Package fs implements blob storage on the local filesystem. Locators are
// file:// URIs so they remain distinguishable from external http(s) artifact
// URLs stored on the same task fields.
package fs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Store persists blobs under a root directory. Keys are slash-separated
// relative paths; anything escaping the root is rejected.
type Store struct {
	root string
}

// NewStore creates a filesystem store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving blob root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Put writes the blob under key and returns its file:// locator. The content
// type is accepted for interface compatibility; the filesystem keeps no
// metadata.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("creating blob directory: %w", err)
	}

	// Write to a temp file then rename so readers never observe partial
	// content.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing blob: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publishing blob: %w", err)
	}

	return (&url.URL{Scheme: "file", Path: path}).String(), nil
}

// Get reads the blob behind a locator previously returned by Put.
func (s *Store) Get(ctx context.Context, locator string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	u, err := url.Parse(locator)
	if err != nil || u.Scheme != "file" {
		return nil, fmt.Errorf("locator %q is not a file uri", locator)
	}

	path := filepath.Clean(u.Path)
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) && path != s.root {
		return nil, fmt.Errorf("locator %q escapes blob root", locator)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return data, nil
}

func (s *Store) resolve(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("blob key must not be empty")
	}
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || strings.HasPrefix(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(s.root, cleaned), nil
}
