// Package cache provides a small best-effort key/value cache used to memoize
// expensive graph computations. Failures are never fatal: callers treat any
// error as a cache miss and recompute.
package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the consumer-side contract. Get reports a hit via ok; Set errors
// are logged by callers and otherwise ignored.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool)
	Set(ctx context.Context, key, value string) error
	Invalidate(ctx context.Context, key string)
}

// LRU is an in-process Cache backed by a fixed-size LRU.
type LRU struct {
	inner *lru.Cache[string, string]
}

// NewLRU creates an LRU cache holding at most size entries.
func NewLRU(size int) (*LRU, error) {
	inner, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("cache: new lru (size %d): %w", size, err)
	}
	return &LRU{inner: inner}, nil
}

func (c *LRU) Get(_ context.Context, key string) (string, bool) {
	return c.inner.Get(key)
}

func (c *LRU) Set(_ context.Context, key, value string) error {
	c.inner.Add(key, value)
	return nil
}

func (c *LRU) Invalidate(_ context.Context, key string) {
	c.inner.Remove(key)
}
