package dpop

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// minRSAModulusBits is the smallest RSA modulus accepted in a proof key.
const minRSAModulusBits = 2048

// extractProofKey reconstructs the public key embedded in the proof header
// and checks it is consistent with the declared signing algorithm. The key
// exists only for the duration of one validation call.
func extractProofKey(p *parsedProof) (crypto.PublicKey, *ProofError) {
	if len(p.header.JWK) == 0 {
		return nil, ErrInvalidKeyMaterial("proof header has no jwk")
	}

	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(p.header.JWK); err != nil {
		return nil, ErrInvalidKeyMaterial("jwk in proof header is malformed")
	}
	if !jwk.Valid() {
		return nil, ErrInvalidKeyMaterial("jwk in proof header is not a valid key")
	}
	if !jwk.IsPublic() {
		// A client that ships its private key in the header has bigger
		// problems, but we still refuse it.
		return nil, ErrInvalidKeyMaterial("jwk in proof header must be a public key")
	}

	switch key := jwk.Key.(type) {
	case *rsa.PublicKey:
		if p.header.Alg != string(jose.RS256) {
			return nil, ErrInvalidKeyMaterial(fmt.Sprintf("RSA key cannot be used with alg %q", p.header.Alg))
		}
		if key.N.BitLen() < minRSAModulusBits {
			return nil, ErrInvalidKeyMaterial(fmt.Sprintf("RSA modulus must be at least %d bits", minRSAModulusBits))
		}
		return key, nil
	case *ecdsa.PublicKey:
		if p.header.Alg != string(jose.ES256) {
			return nil, ErrInvalidKeyMaterial(fmt.Sprintf("EC key cannot be used with alg %q", p.header.Alg))
		}
		if key.Curve != elliptic.P256() {
			return nil, ErrInvalidKeyMaterial("EC key must be on curve P-256")
		}
		return key, nil
	default:
		return nil, ErrInvalidKeyMaterial(fmt.Sprintf("unsupported key type %T", jwk.Key))
	}
}
