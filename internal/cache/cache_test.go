package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextKey(t *testing.T) {
	assert.Equal(t, "context:acme:email", ContextKey("acme", "email"))
}

func TestLRU_SetGetDelete(t *testing.T) {
	c := NewLRU(DefaultConfig(), nil)
	ctx := context.Background()
	key := ContextKey("acme", "email")

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key, map[string]any{"tone": "formal"}))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "formal", got["tone"])

	require.NoError(t, c.Delete(ctx, key))

	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLRU_EntriesDoNotAliasCallerMaps(t *testing.T) {
	c := NewLRU(DefaultConfig(), nil)
	ctx := context.Background()
	key := ContextKey("acme", "email")

	stored := map[string]any{"tone": "formal"}
	require.NoError(t, c.Set(ctx, key, stored))

	// Mutating the map passed to Set leaves the entry untouched.
	stored["tone"] = "casual"

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "formal", got["tone"])

	// Mutating the map returned by Get does not rewrite the entry for
	// later readers.
	got["tone"] = "breezy"
	got["extra"] = true

	again, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "formal", again["tone"])
	assert.NotContains(t, again, "extra")
}

func TestLRU_DeleteAbsentKey(t *testing.T) {
	c := NewLRU(DefaultConfig(), nil)
	assert.NoError(t, c.Delete(context.Background(), "context:ghost:email"))
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := NewLRU(&Config{MaxEntries: 8, TTL: 20 * time.Millisecond}, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]any{"a": 1}))
	time.Sleep(50 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLRU_EvictsOldest(t *testing.T) {
	c := NewLRU(&Config{MaxEntries: 2, TTL: time.Minute}, nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", map[string]any{}))
	require.NoError(t, c.Set(ctx, "b", map[string]any{}))
	require.NoError(t, c.Set(ctx, "c", map[string]any{}))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestNoop(t *testing.T) {
	c := NewNoop()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", map[string]any{"a": 1}))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, c.Delete(ctx, "k"))
}
