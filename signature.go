package dpop

import (
	"crypto"

	"github.com/go-jose/go-jose/v4"
)

// verifyProofSignature verifies the proof's signature against the public key
// embedded in its own header. Only the signature is checked here: issuer,
// audience, and lifetime do not apply to a self-signed per-request proof,
// and freshness was already checked structurally.
func verifyProofSignature(proof, alg string, key crypto.PublicKey) *ProofError {
	// Structural parsing already pinned the alg; restricting the parse to
	// that single algorithm prevents any confusion between declared and
	// verified algorithms.
	jws, err := jose.ParseSigned(proof, []jose.SignatureAlgorithm{jose.SignatureAlgorithm(alg)})
	if err != nil {
		return ErrInvalidSignature("proof is not a verifiable JWS")
	}
	if _, err := jws.Verify(key); err != nil {
		return ErrInvalidSignature("signature does not verify against the embedded key")
	}
	return nil
}
