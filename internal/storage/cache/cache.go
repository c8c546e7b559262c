// Package cache stores JSON documents as files, one per ID, written
// atomically.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	cacheExt       = ".json"
	shardPrefixLen = 2
)

var (
	// ErrNotFound is returned when no document exists for an ID.
	ErrNotFound = errors.New("not found")

	errInvalidID = errors.New("invalid id")
)

// Cache holds values of type T under dir. Sharded caches spread files over
// subdirectories named after the first characters of the ID.
type Cache[T any] struct {
	dir     string
	sharded bool
}

// New creates dir if needed and returns a cache rooted there.
func New[T any](dir string, sharded bool) (*Cache[T], error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache[T]{dir: dir, sharded: sharded}, nil
}

func (c *Cache[T]) path(id string) string {
	if c.sharded && len(id) > shardPrefixLen {
		return filepath.Join(c.dir, id[:shardPrefixLen], id+cacheExt)
	}
	return filepath.Join(c.dir, id+cacheExt)
}

// Get decodes the document stored for id.
func (c *Cache[T]) Get(id string) (T, error) {
	var v T
	if id == "" {
		return v, fmt.Errorf("get: %w", errInvalidID)
	}
	bts, err := os.ReadFile(c.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return v, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return v, fmt.Errorf("get %s: %w", id, err)
	}
	if err := json.Unmarshal(bts, &v); err != nil {
		return v, fmt.Errorf("get %s: %w", id, err)
	}
	return v, nil
}

// Put replaces the document stored for id. Readers see either the old or
// the new document, never a partial one.
func (c *Cache[T]) Put(id string, v T) error {
	if id == "" {
		return fmt.Errorf("put: %w", errInvalidID)
	}
	bts, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}

	path := c.path(id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(bts); err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}
	return nil
}

// Delete removes the document for id. Deleting a missing document is not an
// error.
func (c *Cache[T]) Delete(id string) error {
	if id == "" {
		return fmt.Errorf("delete: %w", errInvalidID)
	}
	if err := os.Remove(c.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}
