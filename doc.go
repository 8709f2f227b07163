// Package dpop validates DPoP proof-of-possession tokens (RFC 9449) at an
// API gateway, binding access tokens to the client key that presented them.
//
// The Validator runs the full validation sequence for each request: proof
// structure and HTTP binding, freshness, replay detection against a
// pluggable cache, key extraction and RFC 7638 thumbprinting, signature
// verification with the embedded key, and comparison against the access
// token's cnf.jkt confirmation claim. Every outcome is an immutable Result;
// the validator never panics outward and fails closed on internal errors.
//
// The Handler wraps a Validator as net/http middleware, owning header
// extraction, challenge responses, rate limiting, and request ID
// propagation. The Generator mints proofs for outbound requests and tests.
//
// Basic usage:
//
//	cache := memory.New()
//	defer cache.Close()
//
//	validator := dpop.NewValidator(cache, dpop.Config{})
//	handler := dpop.NewHandler(validator, dpop.HandlerConfig{})
//	defer handler.Close()
//
//	http.Handle("/api/", handler.EnforceProof(apiMux))
package dpop
