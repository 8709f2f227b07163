package valkey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/authgate/dpop-gateway/replay"
)

// testCache creates a cache connected to a local Valkey instance.
// Tests are skipped if VALKEY_TEST_ADDR is not set and no local server
// answers. Each test gets a unique prefix for isolation.
func testCache(t *testing.T) *Cache {
	t.Helper()

	addr := os.Getenv("VALKEY_TEST_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	prefix := fmt.Sprintf("dpoptest:%s:", t.Name())

	cache, err := New(Config{
		Address:   addr,
		KeyPrefix: prefix,
	})
	if err != nil {
		t.Skipf("Skipping test: could not connect to Valkey at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		cleanupTestKeys(t, cache)
		_ = cache.Close()
	})

	cleanupTestKeys(t, cache)
	return cache
}

// cleanupTestKeys removes all test keys from Valkey
func cleanupTestKeys(t *testing.T, c *Cache) {
	t.Helper()

	ctx := context.Background()
	pattern := c.prefix + "*"

	var cursor uint64
	for {
		result, err := c.client.Do(ctx,
			c.client.B().Scan().Cursor(cursor).Match(pattern).Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			t.Logf("Warning: failed to scan for cleanup: %v", err)
			return
		}

		for _, key := range result.Elements {
			_ = c.client.Do(ctx, c.client.B().Del().Key(key).Build())
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
}

func TestNew_MissingAddress(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Error("Expected error for missing address")
	}
}

func TestNew_InvalidAddress(t *testing.T) {
	_, err := New(Config{Address: "invalid:99999"})
	if err == nil {
		t.Error("Expected error for invalid address")
	}
}

func TestRememberAndIsKnown(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	known, err := c.IsKnown(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsKnown: %v", err)
	}
	if known {
		t.Fatal("unrecorded id reported as known")
	}

	replayed, err := c.Remember(ctx, "jti-1", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if replayed {
		t.Fatal("first Remember reported a replay")
	}

	known, err = c.IsKnown(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsKnown: %v", err)
	}
	if !known {
		t.Fatal("recorded id not reported as known")
	}

	replayed, err = c.Remember(ctx, "jti-1", time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if !replayed {
		t.Fatal("second Remember did not report a replay")
	}
}

func TestRecordExpires(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	// Past expiry is clamped to the minimum TTL of one second.
	if _, err := c.Remember(ctx, "jti-short", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	known, err := c.IsKnown(ctx, "jti-short")
	if err != nil {
		t.Fatalf("IsKnown: %v", err)
	}
	if !known {
		t.Fatal("freshly recorded id not known")
	}

	time.Sleep(1500 * time.Millisecond)

	known, err = c.IsKnown(ctx, "jti-short")
	if err != nil {
		t.Fatalf("IsKnown: %v", err)
	}
	if known {
		t.Error("id still known after its TTL elapsed")
	}
}

func TestIdentifierValidation(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	if _, err := c.Remember(ctx, "", time.Now().Add(time.Minute)); !errors.Is(err, replay.ErrInvalidID) {
		t.Errorf("empty id: error = %v, want ErrInvalidID", err)
	}
	if _, err := c.IsKnown(ctx, ""); !errors.Is(err, replay.ErrInvalidID) {
		t.Errorf("empty id: error = %v, want ErrInvalidID", err)
	}
}
