// Package security provides transport-level protections for the gateway:
// per-client rate limiting, client IP extraction behind proxies, response
// security headers, request ID propagation, and clock-skew-tolerant token
// expiry checks.
//
// The RateLimiter uses a token bucket per identifier with LRU eviction so
// that a distributed attack cannot grow its tracking map without bound.
// Legitimate clients make repeated requests and stay warm in the LRU;
// one-shot attack IPs are evicted first.
package security
