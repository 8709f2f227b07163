// Package valkey provides a Valkey/Redis-compatible replay cache for
// clustered deployments, where every gateway instance must see every
// consumed proof identifier.
package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/authgate/dpop-gateway/replay"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys.
	DefaultKeyPrefix = "dpop:jti:"

	// connectionVerifyTimeout is the timeout for initial connection verification.
	connectionVerifyTimeout = 5 * time.Second

	// minRecordTTL is the floor for stored record lifetimes. SET EX rejects
	// non-positive expirations, and a record that would expire immediately
	// must still survive long enough to catch an in-flight duplicate.
	minRecordTTL = time.Second
)

// Config holds configuration for the Valkey replay cache.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "dpop:jti:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Cache is a Valkey-backed replay cache. Atomicity of Remember rests on
// SET NX, which succeeds for exactly one of any set of concurrent writers.
type Cache struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

var _ replay.Cache = (*Cache)(nil)

// New creates a Valkey-backed replay cache.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Cache, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey replay cache",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Cache{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// key returns the storage key for a proof identifier: {prefix}{id}
func (c *Cache) key(id string) string {
	return c.prefix + id
}

// IsKnown reports whether id has been recorded and has not yet expired.
// Expiry is enforced server-side by the key TTL.
func (c *Cache) IsKnown(ctx context.Context, id string) (bool, error) {
	if err := replay.CheckID(id); err != nil {
		return false, err
	}

	n, err := c.client.Do(ctx, c.client.B().Exists().Key(c.key(id)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check proof identifier: %w", err)
	}
	return n > 0, nil
}

// Remember atomically records id until expiresAt using SET NX EX. It returns
// true if id was already present, in which case the existing record and its
// TTL are left untouched.
func (c *Cache) Remember(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	if err := replay.CheckID(id); err != nil {
		return false, err
	}

	ttl := time.Until(expiresAt)
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}

	resp := c.client.Do(ctx, c.client.B().
		Set().Key(c.key(id)).Value("1").
		Nx().Ex(ttl).
		Build())
	if err := resp.Error(); err != nil {
		// SET NX returns nil when the key already exists.
		if valkeygo.IsValkeyNil(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to record proof identifier: %w", err)
	}
	return false, nil
}

// Close closes the Valkey client connection.
func (c *Cache) Close() error {
	c.client.Close()
	c.logger.Info("Valkey replay cache connection closed")
	return nil
}
