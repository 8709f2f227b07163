// Package testutil provides testing utilities for the gateway: deterministic
// clocks, test key generation, and hand-rolled proof and token builders that
// can produce both valid and deliberately malformed inputs.
package testutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
)

// MockTime provides a controllable time source for deterministic testing
type MockTime struct {
	now time.Time
}

// NewMockTime creates a new mock time provider
func NewMockTime(t time.Time) *MockTime {
	return &MockTime{now: t}
}

// Now returns the current mock time
func (m *MockTime) Now() time.Time {
	return m.now
}

// Advance moves the mock time forward by the given duration
func (m *MockTime) Advance(d time.Duration) {
	m.now = m.now.Add(d)
}

// Set sets the mock time to a specific value
func (m *MockTime) Set(t time.Time) {
	m.now = t
}

// GenerateRSAKey generates a 2048-bit RSA key for tests
func GenerateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	return key
}

// GenerateECKey generates a P-256 ECDSA key for tests
func GenerateECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate EC key: %v", err)
	}
	return key
}

// PublicJWK builds the JWK map for a test key's public half.
func PublicJWK(t *testing.T, pub crypto.PublicKey) map[string]any {
	t.Helper()
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return map[string]any{
			"kty": "RSA",
			"n":   base64.RawURLEncoding.EncodeToString(k.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.E)).Bytes()),
		}
	case *ecdsa.PublicKey:
		byteLen := (k.Curve.Params().BitSize + 7) / 8
		x := make([]byte, byteLen)
		y := make([]byte, byteLen)
		k.X.FillBytes(x)
		k.Y.FillBytes(y)
		return map[string]any{
			"kty": "EC",
			"crv": k.Curve.Params().Name,
			"x":   base64.RawURLEncoding.EncodeToString(x),
			"y":   base64.RawURLEncoding.EncodeToString(y),
		}
	default:
		t.Fatalf("unsupported public key type %T", pub)
		return nil
	}
}

// ProofHeader builds a well-formed proof header for the given key. Tests
// mutate the returned map to produce malformed variants.
func ProofHeader(t *testing.T, key crypto.Signer) map[string]any {
	t.Helper()
	return map[string]any{
		"typ": "dpop+jwt",
		"alg": algFor(t, key),
		"jwk": PublicJWK(t, key.Public()),
	}
}

// ProofClaims builds a well-formed proof claim set for a request.
func ProofClaims(method, uri string, iat time.Time) map[string]any {
	return map[string]any{
		"jti": uuid.New().String(),
		"htm": method,
		"htu": uri,
		"iat": iat.Unix(),
	}
}

// SignProof signs the given header and claims with key, producing a compact
// JWS. The header is serialized exactly as provided, so tests can omit or
// corrupt fields freely.
func SignProof(t *testing.T, key crypto.Signer, header, claims map[string]any) string {
	t.Helper()

	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("failed to marshal proof header: %v", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("failed to marshal proof claims: %v", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(claimsJSON)
	digest := sha256.Sum256([]byte(signingInput))

	var sig []byte
	switch k := key.(type) {
	case *rsa.PrivateKey:
		sig, err = rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, digest[:])
		if err != nil {
			t.Fatalf("failed to sign proof: %v", err)
		}
	case *ecdsa.PrivateKey:
		r, s, signErr := ecdsa.Sign(rand.Reader, k, digest[:])
		if signErr != nil {
			t.Fatalf("failed to sign proof: %v", signErr)
		}
		byteLen := (k.Curve.Params().BitSize + 7) / 8
		sig = make([]byte, 2*byteLen)
		r.FillBytes(sig[:byteLen])
		s.FillBytes(sig[byteLen:])
	default:
		t.Fatalf("unsupported signing key type %T", key)
	}

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// MintAccessToken builds a compact JWT carrying the given payload claims.
// The signature segment is filler: the gateway treats access tokens as
// pre-verified by the issuing authorization server.
func MintAccessToken(t *testing.T, claims map[string]any) string {
	t.Helper()

	header := map[string]any{"typ": "JWT", "alg": "RS256"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("failed to marshal token header: %v", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("failed to marshal token claims: %v", err)
	}

	return base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(claimsJSON) +
		"." + base64.RawURLEncoding.EncodeToString([]byte("test-signature"))
}

// MintBoundToken builds an access token bound to the given thumbprint via
// cnf.jkt, expiring an hour out, with any extra claims merged in.
func MintBoundToken(t *testing.T, jkt string, extra map[string]any) string {
	t.Helper()

	claims := map[string]any{
		"sub": "test-user-123",
		"iss": "https://issuer.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
		"cnf": map[string]any{"jkt": jkt},
	}
	for name, value := range extra {
		claims[name] = value
	}
	return MintAccessToken(t, claims)
}

// GenerateRandomString generates a random base64url string of the given
// length.
func GenerateRandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate random string: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length]
}

// algFor returns the JWS algorithm name for a test key.
func algFor(t *testing.T, key crypto.Signer) string {
	t.Helper()
	switch key.(type) {
	case *rsa.PrivateKey:
		return "RS256"
	case *ecdsa.PrivateKey:
		return "ES256"
	default:
		t.Fatalf("unsupported key type %T", key)
		return ""
	}
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error but got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
