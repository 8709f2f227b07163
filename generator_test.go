package dpop

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"testing"
	"time"

	"github.com/authgate/dpop-gateway/internal/testutil"
	"github.com/authgate/dpop-gateway/replay/memory"
)

func TestGenerator_RoundTrip(t *testing.T) {
	keys := []struct {
		name string
		gen  func(t *testing.T) *Generator
	}{
		{
			name: "RS256",
			gen: func(t *testing.T) *Generator {
				g, err := NewGenerator(testutil.GenerateRSAKey(t))
				if err != nil {
					t.Fatalf("NewGenerator: %v", err)
				}
				return g
			},
		},
		{
			name: "ES256",
			gen: func(t *testing.T) *Generator {
				g, err := NewGenerator(testutil.GenerateECKey(t))
				if err != nil {
					t.Fatalf("NewGenerator: %v", err)
				}
				return g
			},
		},
	}

	for _, tc := range keys {
		t.Run(tc.name, func(t *testing.T) {
			g := tc.gen(t)

			jkt, err := g.Thumbprint()
			if err != nil {
				t.Fatalf("Thumbprint: %v", err)
			}
			token := testutil.MintBoundToken(t, jkt, nil)

			proof, err := g.Generate("POST", "https://api.example.com/resource", token)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}

			cache := memory.New(memory.WithSweepInterval(0))
			defer cache.Close()
			v := NewValidator(cache, Config{})

			res := v.Validate(context.Background(), proof, token, "POST", "https://api.example.com/resource")
			if !res.OK() {
				t.Fatalf("generated proof rejected: %s: %s", res.Reason(), res.Message())
			}
			if res.Thumbprint() != jkt {
				t.Errorf("thumbprint = %q, want %q", res.Thumbprint(), jkt)
			}
		})
	}
}

func TestGenerator_SignRequest(t *testing.T) {
	g, err := NewGenerator(testutil.GenerateECKey(t))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	req, err := http.NewRequest("GET", "https://api.example.com/items?page=2", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if err := g.SignRequest(req, ""); err != nil {
		t.Fatalf("SignRequest: %v", err)
	}

	proof := req.Header.Get(ProofHeaderName)
	if proof == "" {
		t.Fatal("no DPoP header attached")
	}

	// The htu must have the query stripped per the normalization rules.
	parsed, perr := parseProof(proof, map[string]bool{"ES256": true}, DefaultMaxProofSize)
	if perr != nil {
		t.Fatalf("parseProof: %v", perr)
	}
	if parsed.claims.HTU != "https://api.example.com/items" {
		t.Errorf("htu = %q, want query stripped", parsed.claims.HTU)
	}
	if parsed.claims.HTM != "GET" {
		t.Errorf("htm = %q, want GET", parsed.claims.HTM)
	}
	if time.Since(time.Unix(parsed.claims.IAT, 0)) > time.Minute {
		t.Errorf("iat %d is not recent", parsed.claims.IAT)
	}
}

func TestNewGenerator_RejectsWeakKeys(t *testing.T) {
	// 1024-bit RSA falls below the accepted modulus floor.
	weak, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if _, err := NewGenerator(weak); err == nil {
		t.Error("expected error for 1024-bit RSA key")
	}
}

func TestNormalizeURI(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"lowercases scheme and host", "HTTPS://API.Example.COM/Path", "https://api.example.com/Path", false},
		{"strips query", "https://api.example.com/a?b=c", "https://api.example.com/a", false},
		{"strips fragment", "https://api.example.com/a#frag", "https://api.example.com/a", false},
		{"strips default https port", "https://api.example.com:443/a", "https://api.example.com/a", false},
		{"strips default http port", "http://api.example.com:80/a", "http://api.example.com/a", false},
		{"keeps custom port", "https://api.example.com:8443/a", "https://api.example.com:8443/a", false},
		{"empty path becomes slash", "https://api.example.com", "https://api.example.com/", false},
		{"empty URI", "", "", true},
		{"no scheme", "api.example.com/a", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURI(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeURI(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeURI(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
