// Package cache provides smartflow.ResultCache implementations for step
// outputs: an in-process LRU, Redis, and a two-level combination of both.
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sicko7947/smartflow"
)

// DefaultLRUSize is the entry count used when none is configured
const DefaultLRUSize = 1000

// LRUCache keeps step outputs in process memory. Values are stored
// serialized so callers never share maps with the cache.
type LRUCache struct {
	entries *lru.Cache[string, []byte]
}

var _ smartflow.ResultCache = (*LRUCache)(nil)

// NewLRUCache creates a cache holding at most size entries
func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &LRUCache{entries: entries}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (map[string]any, bool, error) {
	data, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	value, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *LRUCache) Set(_ context.Context, key string, value map[string]any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cached result: %w", err)
	}
	c.entries.Add(key, data)
	return nil
}

// Len returns the number of cached entries
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

func decode(data []byte) (map[string]any, error) {
	var value map[string]any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to decode cached result: %w", err)
	}
	return value, nil
}
