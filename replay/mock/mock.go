// Package mock provides a scripted replay cache for unit tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/authgate/dpop-gateway/replay"
)

// Cache is a replay cache with injectable failures for exercising error
// paths. The zero value behaves like an unbounded in-memory cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]time.Time

	// IsKnownErr, when set, is returned by every IsKnown call.
	IsKnownErr error

	// RememberErr, when set, is returned by every Remember call.
	RememberErr error

	// ForceReplay, when set, makes every Remember report a replay.
	ForceReplay bool

	// Closed records whether Close was called.
	Closed bool

	// IsKnownCalls and RememberCalls count invocations.
	IsKnownCalls  int
	RememberCalls int
}

var _ replay.Cache = (*Cache)(nil)

// New creates an empty mock cache.
func New() *Cache {
	return &Cache{entries: make(map[string]time.Time)}
}

func (c *Cache) IsKnown(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.IsKnownCalls++

	if c.IsKnownErr != nil {
		return false, c.IsKnownErr
	}
	if err := replay.CheckID(id); err != nil {
		return false, err
	}
	expiresAt, ok := c.entries[id]
	return ok && time.Now().Before(expiresAt), nil
}

func (c *Cache) Remember(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.RememberCalls++

	if c.RememberErr != nil {
		return false, c.RememberErr
	}
	if c.ForceReplay {
		return true, nil
	}
	if err := replay.CheckID(id); err != nil {
		return false, err
	}
	if c.entries == nil {
		c.entries = make(map[string]time.Time)
	}
	if existing, ok := c.entries[id]; ok && time.Now().Before(existing) {
		return true, nil
	}
	c.entries[id] = expiresAt
	return false, nil
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Preload records id as already consumed until expiresAt.
func (c *Cache) Preload(id string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]time.Time)
	}
	c.entries[id] = expiresAt
}
