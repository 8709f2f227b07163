package dpop

import (
	"log/slog"
	"time"
)

// Defaults for the validator configuration.
const (
	// DefaultMaxProofAge is how far in the past a proof's iat may lie.
	DefaultMaxProofAge = 5 * time.Minute

	// DefaultMaxFutureSkew is how far in the future a proof's iat may lie.
	// Covers clock drift between client and gateway.
	DefaultMaxFutureSkew = 1 * time.Minute

	// DefaultReplayRecordBuffer is added to the token (or proof) expiry when
	// recording a consumed proof identifier, so a replay near the expiry
	// boundary still hits the cache despite clock skew and retries.
	DefaultReplayRecordBuffer = 5 * time.Minute

	// DefaultMaxProofSize caps the accepted proof length in bytes.
	// Prevents DoS via oversized proofs.
	DefaultMaxProofSize = 8 * 1024
)

// DefaultAlgorithms is the default set of accepted proof signing algorithms.
// Symmetric algorithms are never accepted: a proof must be verifiable with
// the public key it embeds.
var DefaultAlgorithms = []string{"RS256", "ES256"}

// Config holds the validator configuration (secure by default; the zero
// value gets the documented defaults applied).
type Config struct {
	// MaxProofAge is the maximum accepted age of a proof. Default: 5 minutes.
	MaxProofAge time.Duration

	// MaxFutureSkew is the maximum accepted future offset of a proof's iat.
	// Default: 1 minute.
	MaxFutureSkew time.Duration

	// ReplayRecordBuffer extends the replay-cache entry lifetime beyond the
	// stated token/proof expiry. Default: 5 minutes.
	ReplayRecordBuffer time.Duration

	// MaxProofSize is the maximum accepted proof length in bytes.
	// Default: 8 KiB.
	MaxProofSize int

	// Algorithms is the accepted set of proof signing algorithms.
	// Default: RS256 and ES256.
	Algorithms []string

	// Logger for structured logging (optional, uses slog.Default if not provided)
	Logger *slog.Logger

	// Clock overrides the time source. Tests use this; production leaves it nil.
	Clock func() time.Time
}

// withDefaults returns a copy of c with unset fields filled in.
func (c Config) withDefaults() Config {
	if c.MaxProofAge <= 0 {
		c.MaxProofAge = DefaultMaxProofAge
	}
	if c.MaxFutureSkew <= 0 {
		c.MaxFutureSkew = DefaultMaxFutureSkew
	}
	if c.ReplayRecordBuffer <= 0 {
		c.ReplayRecordBuffer = DefaultReplayRecordBuffer
	}
	if c.MaxProofSize <= 0 {
		c.MaxProofSize = DefaultMaxProofSize
	}
	if len(c.Algorithms) == 0 {
		c.Algorithms = DefaultAlgorithms
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}
