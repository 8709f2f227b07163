package dpop

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parsedProof holds the decoded but not yet cryptographically verified parts
// of a proof token.
type parsedProof struct {
	header proofHeader
	claims ProofClaims
}

// parseProof decodes the proof and runs the structural checks that need no
// key material, in order: shape, typ, alg, required claims.
func parseProof(proof string, algs map[string]bool, maxSize int) (*parsedProof, *ProofError) {
	if proof == "" {
		return nil, ErrMalformedProof("proof is empty")
	}
	if len(proof) > maxSize {
		return nil, ErrMalformedProof(fmt.Sprintf("proof exceeds maximum size of %d bytes", maxSize))
	}

	parts := strings.Split(proof, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedProof("proof must be a compact JWT with exactly 3 segments")
	}
	for _, part := range parts {
		if part == "" {
			return nil, ErrMalformedProof("proof segments cannot be empty")
		}
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrMalformedProof("proof header is not valid base64url")
	}
	var header proofHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, ErrMalformedProof("proof header is not valid JSON")
	}

	if header.Typ != ProofTypeJWT {
		return nil, ErrInvalidType(fmt.Sprintf("typ must be %q, got %q", ProofTypeJWT, header.Typ))
	}
	if !algs[header.Alg] {
		return nil, ErrUnsupportedAlgorithm(fmt.Sprintf("alg %q is not in the supported set", header.Alg))
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformedProof("proof payload is not valid base64url")
	}
	var claims ProofClaims
	if err := json.Unmarshal(payloadBytes, &claims); err != nil {
		return nil, ErrMalformedProof("proof payload is not valid JSON")
	}

	// Signature segment must at least decode; verification happens later.
	if _, err := base64.RawURLEncoding.DecodeString(parts[2]); err != nil {
		return nil, ErrMalformedProof("proof signature is not valid base64url")
	}

	if perr := requireClaims(claims); perr != nil {
		return nil, perr
	}

	return &parsedProof{header: header, claims: claims}, nil
}

// requireClaims checks the presence of all required proof claims and reports
// every absent one by name.
func requireClaims(claims ProofClaims) *ProofError {
	var missing []string
	if claims.JTI == "" {
		missing = append(missing, "jti")
	}
	if claims.IAT <= 0 {
		missing = append(missing, "iat")
	}
	if claims.HTM == "" {
		missing = append(missing, "htm")
	}
	if claims.HTU == "" {
		missing = append(missing, "htu")
	}
	if len(missing) > 0 {
		return ErrMissingClaims("missing required claims: " + strings.Join(missing, ", "))
	}
	return nil
}

// checkHTTPBinding verifies the proof is bound to the request actually being
// made. Method and URI comparisons are case-insensitive exact matches.
func (p *parsedProof) checkHTTPBinding(method, uri string) *ProofError {
	if !strings.EqualFold(p.claims.HTM, method) {
		return ErrMethodMismatch(fmt.Sprintf("proof is bound to method %q, request is %q", p.claims.HTM, method))
	}
	if !strings.EqualFold(p.claims.HTU, uri) {
		return ErrURIMismatch(fmt.Sprintf("proof is bound to URI %q, request is %q", p.claims.HTU, uri))
	}
	return nil
}

// checkFreshness verifies the proof's iat lies within the acceptance window:
// no more than maxFutureSkew ahead of now and no more than maxAge behind.
func (p *parsedProof) checkFreshness(now time.Time, maxAge, maxFutureSkew time.Duration) *ProofError {
	issued := time.Unix(p.claims.IAT, 0)
	if age := now.Sub(issued); age > maxAge {
		return ErrStaleProof(fmt.Sprintf("proof was issued %s ago, maximum age is %s", age.Truncate(time.Second), maxAge))
	}
	if ahead := issued.Sub(now); ahead > maxFutureSkew {
		return ErrStaleProof(fmt.Sprintf("proof is issued %s in the future, maximum skew is %s", ahead.Truncate(time.Second), maxFutureSkew))
	}
	return nil
}
