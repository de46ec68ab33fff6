package fileutil

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// entry holds cached data alongside file metadata for staleness detection.
type entry[T any] struct {
	data    T
	size    int64
	modTime int64
}

// Cache is a generic file cache backed by an LRU with TTL-based expiration.
// Entries are reloaded whenever the file's size or modification time differs
// from what was recorded when the entry was stored.
type Cache[T any] struct {
	name string
	lru  *expirable.LRU[string, entry[T]]
}

// NewCache creates a new cache with the specified capacity and time-to-live.
// A capacity of 0 means unlimited size.
func NewCache[T any](name string, capacity int, ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		name: name,
		lru:  expirable.NewLRU[string, entry[T]](capacity, nil, ttl),
	}
}

// Name returns the cache name.
func (c *Cache[T]) Name() string {
	return c.name
}

// Size returns the current number of entries.
func (c *Cache[T]) Size() int {
	return c.lru.Len()
}

// Store adds or updates an item with metadata from the file.
func (c *Cache[T]) Store(fileName string, data T, fi os.FileInfo) {
	c.lru.Add(fileName, entry[T]{
		data:    data,
		size:    fi.Size(),
		modTime: fi.ModTime().UnixNano(),
	})
}

// Invalidate removes an item from the cache.
func (c *Cache[T]) Invalidate(fileName string) {
	c.lru.Remove(fileName)
}

// LoadLatest returns the cached value for filePath, calling loader when the
// entry is missing or stale.
func (c *Cache[T]) LoadLatest(filePath string, loader func() (T, error)) (T, error) {
	stale, fi, err := c.isStale(filePath)
	if err != nil {
		var zero T
		return zero, err
	}
	if !stale {
		if e, ok := c.lru.Get(filePath); ok {
			return e.data, nil
		}
	}
	data, err := loader()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Store(filePath, data, fi)
	return data, nil
}

func (c *Cache[T]) isStale(fileName string) (bool, os.FileInfo, error) {
	fi, err := os.Stat(fileName)
	if err != nil {
		return true, fi, fmt.Errorf("failed to stat file %s: %w", fileName, err)
	}
	e, ok := c.lru.Peek(fileName)
	if !ok {
		return true, fi, nil
	}
	return e.modTime != fi.ModTime().UnixNano() || e.size != fi.Size(), fi, nil
}
