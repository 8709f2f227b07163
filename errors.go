package dpop

import (
	"fmt"
	"net/http"
)

// ReasonCode is a machine-readable rejection reason. It is surfaced to
// callers in the error parameter of the WWW-Authenticate challenge.
type ReasonCode string

// Rejection reasons, grouped by validation stage.
const (
	// Structural rejection
	ReasonMalformedProof       ReasonCode = "malformed_proof"
	ReasonInvalidType          ReasonCode = "invalid_type"
	ReasonUnsupportedAlgorithm ReasonCode = "unsupported_algorithm"
	ReasonMissingClaims        ReasonCode = "missing_claims"
	ReasonMethodMismatch       ReasonCode = "method_mismatch"
	ReasonURIMismatch          ReasonCode = "uri_mismatch"
	ReasonStaleProof           ReasonCode = "stale_proof"

	// Replay rejection
	ReasonReplayDetected ReasonCode = "replay_detected"

	// Cryptographic rejection
	ReasonInvalidKeyMaterial ReasonCode = "invalid_key_material"
	ReasonInvalidSignature   ReasonCode = "invalid_signature"

	// Binding rejection
	ReasonInvalidAccessToken ReasonCode = "invalid_access_token"
	ReasonMissingBinding     ReasonCode = "missing_binding"
	ReasonBindingMismatch    ReasonCode = "binding_mismatch"

	// Terminal conditions outside the proof itself. Internal errors always
	// fail closed: a request is never let through because the cache was down.
	ReasonCancelled     ReasonCode = "cancelled"
	ReasonInternalError ReasonCode = "internal_error"
)

// ProofError describes why a proof was rejected
type ProofError struct {
	Reason      ReasonCode // Machine-readable reason code (e.g., "method_mismatch")
	Description string     // Human-readable error description
	Status      int        // HTTP status code the gateway layer should respond with
}

// Error implements the error interface
func (e *ProofError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Description)
}

// NewProofError creates a new proof rejection error
func NewProofError(reason ReasonCode, description string, status int) *ProofError {
	return &ProofError{
		Reason:      reason,
		Description: description,
		Status:      status,
	}
}

// Rejection constructors. All proof rejections map to 401 at the HTTP layer;
// only internal failures surface as 500.
var (
	// ErrMalformedProof indicates the proof string could not be decoded as a signed JWT
	ErrMalformedProof = func(desc string) *ProofError {
		return NewProofError(ReasonMalformedProof, desc, http.StatusUnauthorized)
	}

	// ErrInvalidType indicates the proof's typ header is not "dpop+jwt"
	ErrInvalidType = func(desc string) *ProofError {
		return NewProofError(ReasonInvalidType, desc, http.StatusUnauthorized)
	}

	// ErrUnsupportedAlgorithm indicates the proof's alg header is not in the supported set
	ErrUnsupportedAlgorithm = func(desc string) *ProofError {
		return NewProofError(ReasonUnsupportedAlgorithm, desc, http.StatusUnauthorized)
	}

	// ErrMissingClaims indicates one or more required proof claims are absent
	ErrMissingClaims = func(desc string) *ProofError {
		return NewProofError(ReasonMissingClaims, desc, http.StatusUnauthorized)
	}

	// ErrMethodMismatch indicates the htm claim does not match the request method
	ErrMethodMismatch = func(desc string) *ProofError {
		return NewProofError(ReasonMethodMismatch, desc, http.StatusUnauthorized)
	}

	// ErrURIMismatch indicates the htu claim does not match the request URI
	ErrURIMismatch = func(desc string) *ProofError {
		return NewProofError(ReasonURIMismatch, desc, http.StatusUnauthorized)
	}

	// ErrStaleProof indicates the proof's iat is outside the acceptance window
	ErrStaleProof = func(desc string) *ProofError {
		return NewProofError(ReasonStaleProof, desc, http.StatusUnauthorized)
	}

	// ErrReplayDetected indicates the proof identifier has already been consumed
	ErrReplayDetected = func(desc string) *ProofError {
		return NewProofError(ReasonReplayDetected, desc, http.StatusUnauthorized)
	}

	// ErrInvalidKeyMaterial indicates the embedded public key is absent, malformed, or unsupported
	ErrInvalidKeyMaterial = func(desc string) *ProofError {
		return NewProofError(ReasonInvalidKeyMaterial, desc, http.StatusUnauthorized)
	}

	// ErrInvalidSignature indicates the proof signature does not verify against the embedded key
	ErrInvalidSignature = func(desc string) *ProofError {
		return NewProofError(ReasonInvalidSignature, desc, http.StatusUnauthorized)
	}

	// ErrInvalidAccessToken indicates the access token could not be parsed
	ErrInvalidAccessToken = func(desc string) *ProofError {
		return NewProofError(ReasonInvalidAccessToken, desc, http.StatusUnauthorized)
	}

	// ErrMissingBinding indicates the access token carries no key confirmation claim
	ErrMissingBinding = func(desc string) *ProofError {
		return NewProofError(ReasonMissingBinding, desc, http.StatusUnauthorized)
	}

	// ErrBindingMismatch indicates the proof key thumbprint does not equal the token's bound key
	ErrBindingMismatch = func(desc string) *ProofError {
		return NewProofError(ReasonBindingMismatch, desc, http.StatusUnauthorized)
	}

	// ErrCancelled indicates the validation was cancelled by the caller's context
	ErrCancelled = func(desc string) *ProofError {
		return NewProofError(ReasonCancelled, desc, http.StatusUnauthorized)
	}

	// ErrInternal indicates an unexpected failure; validation fails closed
	ErrInternal = func(desc string) *ProofError {
		return NewProofError(ReasonInternalError, desc, http.StatusInternalServerError)
	}
)
