// Package cache provides the best-effort read-through cache used by the
// context store. The cache is never authoritative: implementations may
// fail or drop entries at any time and callers must treat every error as
// recoverable.
package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// ContextKey builds the cache key for one (client, capability) context
// document. Every component that touches the cache uses this helper so
// invalidation and reads cannot drift apart.
func ContextKey(clientID, capability string) string {
	return "context:" + clientID + ":" + capability
}

// Cache is the capability interface for context caching. A disabled cache
// is modeled by Noop rather than by nil checks at call sites.
//
// Documents are copied at the top key level on both Set and Get, so a
// caller mutating top-level keys of a returned or stored map never
// rewrites the cached entry. Nested values are shared and must be
// treated as read-only.
type Cache interface {
	// Get returns the cached document for key. The second return is
	// false on miss or expiry.
	Get(ctx context.Context, key string) (map[string]any, bool, error)

	// Set stores value under key until the implementation's TTL lapses.
	Set(ctx context.Context, key string, value map[string]any) error

	// Delete invalidates key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Config configures the in-process cache.
type Config struct {
	// MaxEntries bounds the number of cached documents (default: 1024).
	MaxEntries int

	// TTL is how long an entry stays valid (default: 300s).
	TTL time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxEntries: 1024,
		TTL:        300 * time.Second,
	}
}

// LRU is an in-process expirable LRU cache.
type LRU struct {
	entries *expirable.LRU[string, map[string]any]
	logger  *zap.Logger
}

// NewLRU creates an in-process cache with the given bounds.
func NewLRU(cfg *Config, logger *zap.Logger) *LRU {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1024
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 300 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LRU{
		entries: expirable.NewLRU[string, map[string]any](cfg.MaxEntries, nil, cfg.TTL),
		logger:  logger,
	}
}

// Get implements Cache.
func (c *LRU) Get(_ context.Context, key string) (map[string]any, bool, error) {
	value, ok := c.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	return copyDoc(value), true, nil
}

// Set implements Cache.
func (c *LRU) Set(_ context.Context, key string, value map[string]any) error {
	c.entries.Add(key, copyDoc(value))
	return nil
}

// copyDoc detaches the top key level so cached entries never alias
// caller-held maps.
func copyDoc(doc map[string]any) map[string]any {
	copied := make(map[string]any, len(doc))
	for k, v := range doc {
		copied[k] = v
	}
	return copied
}

// Delete implements Cache.
func (c *LRU) Delete(_ context.Context, key string) error {
	c.entries.Remove(key)
	return nil
}

// Noop is the null cache used when caching is disabled. Get always
// misses, Set and Delete succeed silently.
type Noop struct{}

// NewNoop returns the null cache.
func NewNoop() Noop { return Noop{} }

// Get implements Cache.
func (Noop) Get(context.Context, string) (map[string]any, bool, error) { return nil, false, nil }

// Set implements Cache.
func (Noop) Set(context.Context, string, map[string]any) error { return nil }

// Delete implements Cache.
func (Noop) Delete(context.Context, string) error { return nil }
