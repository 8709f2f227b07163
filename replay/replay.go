// Package replay defines the time-expiring set the gateway uses to detect
// reuse of consumed proof identifiers.
//
// Implementations are provided in subpackages:
//   - replay/memory: process-local expiring map for single-instance deployments
//   - replay/valkey: Valkey/Redis-compatible shared store for clustered deployments
//   - replay/mock: scripted implementation for unit testing
//
// A single-instance deployment using the memory cache has exact replay
// semantics. In a clustered deployment each instance's memory cache only
// sees its own traffic, so a proof replayed against a different instance can
// slip through; substitute the valkey cache there. This trade-off is a
// documented property of the interface, not of any one implementation.
package replay

import (
	"context"
	"errors"
	"time"
)

// MaxIDLength is the maximum accepted proof-identifier length in bytes.
const MaxIDLength = 1024

var (
	// ErrInvalidID indicates the identifier is empty.
	ErrInvalidID = errors.New("invalid proof identifier: must be non-empty")

	// ErrIDTooLong indicates the identifier exceeds MaxIDLength.
	ErrIDTooLong = errors.New("proof identifier too long: maximum 1024 bytes")

	// ErrCacheFull indicates the cache refused a new entry at capacity.
	ErrCacheFull = errors.New("replay cache full: maximum entries reached")
)

// Cache records consumed proof identifiers until they expire.
// Implementations must be safe for concurrent use.
type Cache interface {
	// IsKnown reports whether id has been recorded and has not yet expired.
	IsKnown(ctx context.Context, id string) (bool, error)

	// Remember atomically records id until expiresAt. It returns true if id
	// was already present and unexpired, in which case nothing is recorded:
	// of two concurrent callers presenting the same id, exactly one sees
	// false.
	Remember(ctx context.Context, id string, expiresAt time.Time) (bool, error)

	// Close releases any resources held by the cache.
	Close() error
}

// CheckID validates an identifier before it touches a backing store.
func CheckID(id string) error {
	if id == "" {
		return ErrInvalidID
	}
	if len(id) > MaxIDLength {
		return ErrIDTooLong
	}
	return nil
}
