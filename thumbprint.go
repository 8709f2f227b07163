package dpop

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of a public key.
//
// The canonical form contains only the key-type-defining members, in
// lexicographic order with no whitespace:
//
//	RSA: {"e":...,"kty":"RSA","n":...}
//	EC:  {"crv":...,"kty":"EC","x":...,"y":...}
//
// The digest of the UTF-8 canonical form is base64url-encoded without
// padding. Because the members are rebuilt from the key parameters, the
// result is deterministic regardless of field order in the source JWK.
func Thumbprint(key crypto.PublicKey) (string, error) {
	var canonical string

	switch k := key.(type) {
	case *rsa.PublicKey:
		e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(k.E)).Bytes())
		n := base64.RawURLEncoding.EncodeToString(k.N.Bytes())
		canonical = fmt.Sprintf(`{"e":"%s","kty":"RSA","n":"%s"}`, e, n)
	case *ecdsa.PublicKey:
		// Coordinates are fixed-width per RFC 7518 section 6.2.1.2: left-pad
		// to the curve's byte length so short coordinates hash identically
		// everywhere.
		size := (k.Curve.Params().BitSize + 7) / 8
		x := base64.RawURLEncoding.EncodeToString(k.X.FillBytes(make([]byte, size)))
		y := base64.RawURLEncoding.EncodeToString(k.Y.FillBytes(make([]byte, size)))
		canonical = fmt.Sprintf(`{"crv":"%s","kty":"EC","x":"%s","y":"%s"}`, k.Curve.Params().Name, x, y)
	default:
		return "", fmt.Errorf("cannot compute thumbprint for key type %T", key)
	}

	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}
