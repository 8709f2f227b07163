// Package memory provides a process-local replay cache.
// It is suitable for development, testing, and single-instance deployments.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/authgate/dpop-gateway/replay"
)

const (
	// DefaultMaxEntries is the default maximum number of recorded identifiers.
	DefaultMaxEntries = 100_000

	// DefaultSweepInterval is the default interval for expired entry removal.
	// Expired entries are also ignored (and replaced) on access, so the
	// sweep only bounds memory, not correctness.
	DefaultSweepInterval = 30 * time.Second
)

// entry records when an identifier stops being a replay.
type entry struct {
	expiresAt time.Time
}

// Cache is an in-memory replay cache using sync.Map for atomic
// check-and-set semantics.
type Cache struct {
	entries    sync.Map
	entryCount atomic.Int64
	maxEntries int64
	now        func() time.Time

	sweepInterval time.Duration // -1 disables the background sweep
	stopSweep     chan struct{}
	sweepDone     chan struct{}
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries sets the maximum number of recorded identifiers.
func WithMaxEntries(max int) Option {
	return func(c *Cache) {
		c.maxEntries = int64(max)
	}
}

// WithSweepInterval sets the interval for expired entry removal.
// Pass 0 to disable the background sweep.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Cache) {
		if interval <= 0 {
			c.sweepInterval = -1
		} else {
			c.sweepInterval = interval
		}
	}
}

// WithClock overrides the time source. Tests use this.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates an in-memory replay cache. By default it holds at most
// 100,000 identifiers and sweeps expired entries every 30 seconds.
func New(opts ...Option) *Cache {
	c := &Cache{
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		stopSweep:  make(chan struct{}),
		sweepDone:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.sweepInterval >= 0 {
		interval := c.sweepInterval
		if interval == 0 {
			interval = DefaultSweepInterval
		}
		go c.sweepLoop(interval)
	} else {
		close(c.sweepDone)
	}

	return c
}

// IsKnown reports whether id has been recorded and has not yet expired.
func (c *Cache) IsKnown(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := replay.CheckID(id); err != nil {
		return false, err
	}

	value, ok := c.entries.Load(id)
	if !ok {
		return false, nil
	}
	return c.now().Before(value.(*entry).expiresAt), nil
}

// Remember atomically records id until expiresAt. Returns true if id was
// already present and unexpired. LoadOrStore and CompareAndSwap close the
// window where two concurrent requests present the same identifier: only
// one of them observes false.
func (c *Cache) Remember(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := replay.CheckID(id); err != nil {
		return false, err
	}

	fresh := &entry{expiresAt: expiresAt}
	existing, loaded := c.entries.LoadOrStore(id, fresh)
	if loaded {
		if c.now().Before(existing.(*entry).expiresAt) {
			return true, nil
		}
		// Expired entry; try to take its place.
		if c.entries.CompareAndSwap(id, existing, fresh) {
			return false, nil
		}
		// Someone else replaced it first.
		return true, nil
	}

	if count := c.entryCount.Add(1); count > c.maxEntries {
		c.entries.Delete(id)
		c.entryCount.Add(-1)
		return false, replay.ErrCacheFull
	}
	return false, nil
}

// Close stops the background sweep.
func (c *Cache) Close() error {
	select {
	case <-c.stopSweep:
	default:
		close(c.stopSweep)
	}
	<-c.sweepDone
	return nil
}

// Len returns the current number of recorded identifiers, expired or not.
func (c *Cache) Len() int {
	return int(c.entryCount.Load())
}

func (c *Cache) sweepLoop(interval time.Duration) {
	defer close(c.sweepDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes all expired entries.
func (c *Cache) sweep() {
	now := c.now()
	c.entries.Range(func(key, value any) bool {
		if !now.Before(value.(*entry).expiresAt) {
			if c.entries.CompareAndDelete(key, value) {
				c.entryCount.Add(-1)
			}
		}
		return true
	})
}

var _ replay.Cache = (*Cache)(nil)
