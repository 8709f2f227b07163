package dpop

import (
	"encoding/json"
	"maps"
)

const (
	// ProofTypeJWT is the required typ header value for DPoP proofs (RFC 9449).
	ProofTypeJWT = "dpop+jwt"

	// ProofHeaderName is the HTTP header clients send proofs in.
	ProofHeaderName = "DPoP"
)

// proofHeader is the decode target for the proof's JOSE header. The proof is
// decoded exactly once into typed structs; no generic map probing.
type proofHeader struct {
	// Typ must be "dpop+jwt" (required)
	Typ string `json:"typ"`

	// Alg is the asymmetric signing algorithm, e.g. "RS256" or "ES256" (required)
	Alg string `json:"alg"`

	// JWK is the embedded public key the proof is signed with (required).
	// Kept raw here; key extraction validates it separately.
	JWK json.RawMessage `json:"jwk,omitempty"`
}

// ProofClaims are the payload claims of a DPoP proof JWT. They bind the
// proof to a single HTTP request.
type ProofClaims struct {
	// JTI is the unique proof identifier used for replay detection (required)
	JTI string `json:"jti"`

	// HTM is the HTTP method the proof is bound to (required)
	HTM string `json:"htm"`

	// HTU is the HTTP URI the proof is bound to (required)
	HTU string `json:"htu"`

	// IAT is the issuance time in Unix seconds (required)
	IAT int64 `json:"iat"`

	// ATH is an optional base64url SHA-256 hash of the access token,
	// binding the proof to that exact token (RFC 9449 section 4.3).
	ATH string `json:"ath,omitempty"`
}

// confirmation is the RFC 7800 cnf claim carried by a bound access token.
type confirmation struct {
	// JKT is the RFC 7638 thumbprint of the key the token is bound to.
	JKT string `json:"jkt,omitempty"`
}

// accessTokenClaims is the subset of the access-token payload this package
// reads. The token's signature and lifetime are the issuer's concern and are
// not verified here.
type accessTokenClaims struct {
	Subject      string        `json:"sub,omitempty"`
	Issuer       string        `json:"iss,omitempty"`
	ClientID     string        `json:"client_id,omitempty"`
	Scope        string        `json:"scope,omitempty"`
	Expiry       int64         `json:"exp,omitempty"`
	Confirmation *confirmation `json:"cnf,omitempty"`
}

// Result is the immutable outcome of a validation call. It is either
// accepting (derived claims plus the proof key's thumbprint) or rejecting
// (reason code plus message); no partially-initialized state is reachable.
type Result struct {
	ok         bool
	claims     map[string]string
	thumbprint string
	reason     ReasonCode
	message    string
	status     int
}

// Accept constructs an accepting Result carrying the identity claims derived
// from the access token and the computed proof-key thumbprint.
func Accept(claims map[string]string, thumbprint string) Result {
	return Result{
		ok:         true,
		claims:     maps.Clone(claims),
		thumbprint: thumbprint,
	}
}

// Reject constructs a rejecting Result with a machine-readable reason.
func Reject(reason ReasonCode, message string) Result {
	status := 401
	if reason == ReasonInternalError {
		status = 500
	}
	return Result{reason: reason, message: message, status: status}
}

// reject converts a ProofError into a rejecting Result.
func reject(e *ProofError) Result {
	return Result{reason: e.Reason, message: e.Description, status: e.Status}
}

// OK reports whether the proof was accepted.
func (r Result) OK() bool { return r.ok }

// Claims returns a copy of the derived identity claims. Empty unless OK.
func (r Result) Claims() map[string]string { return maps.Clone(r.claims) }

// Thumbprint returns the RFC 7638 thumbprint of the proof's key. Empty unless OK.
func (r Result) Thumbprint() string { return r.thumbprint }

// Reason returns the rejection reason code. Empty when OK.
func (r Result) Reason() ReasonCode { return r.reason }

// Message returns the human-readable rejection message. Empty when OK.
func (r Result) Message() string { return r.message }

// Status returns the HTTP status the gateway layer should respond with on
// rejection. Zero when OK.
func (r Result) Status() int { return r.status }
