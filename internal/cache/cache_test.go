package cache

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUGetSetInvalidate(t *testing.T) {
	c, err := NewLRU(4)
	require.NoError(t, err)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "miss before set")

	require.NoError(t, c.Set(ctx, "k", "v"))
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	c.Invalidate(ctx, "k")
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok, "invalidated key is a miss")
}

func TestLRUEvictsOldestAtCapacity(t *testing.T) {
	c, err := NewLRU(2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1"))
	require.NoError(t, c.Set(ctx, "b", "2"))

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", "3"))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestLRURejectsNonPositiveSize(t *testing.T) {
	_, err := NewLRU(0)
	assert.Error(t, err)
}

func TestLRUOverwrite(t *testing.T) {
	c, err := NewLRU(8)
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, "k", fmt.Sprintf("v%d", i)))
	}
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v2", got)
}
