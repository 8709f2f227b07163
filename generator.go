package dpop

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// Generator creates DPoP proofs for outbound requests. Gateways use it to
// re-sign proxied requests toward upstream services; tests use it to mint
// realistic proofs against the validator.
type Generator struct {
	signer crypto.Signer
	alg    jose.SignatureAlgorithm
}

// NewGenerator creates a proof generator for the given private key.
// RSA keys sign with RS256, P-256 ECDSA keys with ES256.
func NewGenerator(key crypto.Signer) (*Generator, error) {
	alg, err := algorithmFor(key)
	if err != nil {
		return nil, err
	}
	return &Generator{signer: key, alg: alg}, nil
}

// algorithmFor maps a private key to its signature algorithm.
func algorithmFor(key crypto.Signer) (jose.SignatureAlgorithm, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		if k.N.BitLen() < minRSAModulusBits {
			return "", fmt.Errorf("RSA key must be at least %d bits", minRSAModulusBits)
		}
		return jose.RS256, nil
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return "", fmt.Errorf("ECDSA key must use curve P-256, got %s", k.Curve.Params().Name)
		}
		return jose.ES256, nil
	default:
		return "", fmt.Errorf("unsupported key type %T", key)
	}
}

// proofClaimsOut is the wire form of generated proof claims.
type proofClaimsOut struct {
	JTI string `json:"jti"`
	HTM string `json:"htm"`
	HTU string `json:"htu"`
	IAT int64  `json:"iat"`
	ATH string `json:"ath,omitempty"`
}

// Generate creates a DPoP proof JWT for the given HTTP method and URI.
// When accessToken is non-empty, the proof carries an ath claim binding it
// to that token.
func (g *Generator) Generate(method, uri, accessToken string) (string, error) {
	normalizedURI, err := NormalizeURI(uri)
	if err != nil {
		return "", fmt.Errorf("failed to normalize URI: %w", err)
	}

	jwk := jose.JSONWebKey{
		Key:       g.signer.Public(),
		Algorithm: string(g.alg),
	}
	signerOpts := (&jose.SignerOptions{}).
		WithType(ProofTypeJWT).
		WithHeader("jwk", jwk)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: g.alg, Key: g.signer}, signerOpts)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	claims := proofClaimsOut{
		JTI: uuid.New().String(),
		HTM: method,
		HTU: normalizedURI,
		IAT: time.Now().Unix(),
	}
	if accessToken != "" {
		sum := sha256.Sum256([]byte(accessToken))
		claims.ATH = base64.RawURLEncoding.EncodeToString(sum[:])
	}

	proof, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize proof: %w", err)
	}
	return proof, nil
}

// SignRequest generates a proof for req and attaches it as the DPoP header.
// The htu is derived from the request URL, not the Host header.
func (g *Generator) SignRequest(req *http.Request, accessToken string) error {
	proof, err := g.Generate(req.Method, req.URL.String(), accessToken)
	if err != nil {
		return fmt.Errorf("failed to generate proof: %w", err)
	}
	req.Header.Set(ProofHeaderName, proof)
	return nil
}

// Thumbprint returns the RFC 7638 thumbprint of the generator's public key.
func (g *Generator) Thumbprint() (string, error) {
	return Thumbprint(g.signer.Public())
}

// NormalizeURI normalizes a URI per RFC 9449 section 4.2:
//   - Lowercase scheme and host
//   - Keep path exactly as-is
//   - Remove query string and fragment
//   - Remove default port (443 for https, 80 for http)
//
// Returns an error if the URI is empty or missing scheme or host.
func NormalizeURI(rawURI string) (string, error) {
	if rawURI == "" {
		return "", fmt.Errorf("URI cannot be empty")
	}

	parsed, err := url.Parse(rawURI)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("URI must have scheme and host")
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Hostname())

	if port := parsed.Port(); port != "" {
		isDefaultPort := (scheme == "https" && port == "443") || (scheme == "http" && port == "80")
		if !isDefaultPort {
			host = host + ":" + port
		}
	}

	path := parsed.Path
	if path == "" {
		path = "/"
	}

	return scheme + "://" + host + path, nil
}
