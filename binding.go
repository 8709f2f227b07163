package dpop

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
)

// accessToken is the decoded view of an inbound access token. The token is
// opaque to this package beyond its payload claims: it is assumed already
// issued and signed by a trusted issuer, so no signature check happens here.
type accessToken struct {
	claims accessTokenClaims

	// raw holds every top-level payload claim for derived-identity
	// extraction.
	raw map[string]any
}

// parseAccessToken decodes the payload of a compact-JWT access token.
func parseAccessToken(token string) (*accessToken, *ProofError) {
	if token == "" {
		return nil, ErrInvalidAccessToken("access token is empty")
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidAccessToken("access token must be a compact JWT with exactly 3 segments")
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidAccessToken("access token payload is not valid base64url")
	}

	tok := &accessToken{}
	if err := json.Unmarshal(payloadBytes, &tok.claims); err != nil {
		return nil, ErrInvalidAccessToken("access token payload is not valid JSON")
	}
	if err := json.Unmarshal(payloadBytes, &tok.raw); err != nil {
		return nil, ErrInvalidAccessToken("access token payload is not valid JSON")
	}
	return tok, nil
}

// matchBinding compares the access token's confirmation claim against the
// computed proof-key thumbprint. The comparison is exact and case-sensitive;
// thumbprints are base64url strings where case is significant.
func (t *accessToken) matchBinding(thumbprint string) *ProofError {
	cnf := t.claims.Confirmation
	if cnf == nil {
		return ErrMissingBinding("access token has no cnf claim")
	}
	if cnf.JKT == "" {
		return ErrMissingBinding("access token's cnf claim has no jkt thumbprint")
	}
	if subtle.ConstantTimeCompare([]byte(cnf.JKT), []byte(thumbprint)) != 1 {
		return ErrBindingMismatch("access token is bound to a different key")
	}
	return nil
}

// derivedClaims flattens the access token's top-level claims into the
// string map attached to an accepting Result. Composite claims such as cnf
// are skipped; numeric claims are rendered in decimal.
func (t *accessToken) derivedClaims() map[string]string {
	claims := make(map[string]string, len(t.raw))
	for name, value := range t.raw {
		switch v := value.(type) {
		case string:
			claims[name] = v
		case float64:
			if v == float64(int64(v)) {
				claims[name] = strconv.FormatInt(int64(v), 10)
			} else {
				claims[name] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		case bool:
			claims[name] = strconv.FormatBool(v)
		}
	}
	return claims
}

// checkAccessTokenHash verifies the proof's optional ath claim against the
// token the proof arrived with. An absent ath is fine; a present one must
// match base64url(SHA-256(token)).
func checkAccessTokenHash(ath, token string) *ProofError {
	if ath == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(token))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(ath), []byte(want)) != 1 {
		return ErrBindingMismatch("proof's ath claim does not match the presented access token")
	}
	return nil
}

// RequiresProof reports whether the access token is DPoP-bound, i.e. carries
// a cnf claim with a jkt thumbprint. Callers use this to decide whether a
// request without a DPoP header may proceed as a plain bearer request or
// must be rejected.
func RequiresProof(token string) bool {
	tok, perr := parseAccessToken(token)
	if perr != nil {
		return false
	}
	return tok.claims.Confirmation != nil && tok.claims.Confirmation.JKT != ""
}

// BoundThumbprint returns the key thumbprint an access token is bound to,
// or an empty string if the token is unbound or unparseable.
func BoundThumbprint(token string) string {
	tok, perr := parseAccessToken(token)
	if perr != nil || tok.claims.Confirmation == nil {
		return ""
	}
	return tok.claims.Confirmation.JKT
}
