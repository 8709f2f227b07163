package dpop

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/authgate/dpop-gateway/internal/testutil"
)

func TestParseAccessToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{"empty", "", true},
		{"one segment", "abc", true},
		{"two segments", "a.b", true},
		{"four segments", "a.b.c.d", true},
		{"payload not base64", "a.!!!.c", true},
		{"payload not JSON", "a." + b64("not json") + ".c", true},
		{"valid", "a." + b64(`{"sub":"u1"}`) + ".c", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, perr := parseAccessToken(tt.token)
			if (perr != nil) != tt.wantErr {
				t.Errorf("parseAccessToken(%q) error = %v, wantErr %v", tt.token, perr, tt.wantErr)
			}
			if perr != nil && perr.Reason != ReasonInvalidAccessToken {
				t.Errorf("reason = %s, want %s", perr.Reason, ReasonInvalidAccessToken)
			}
		})
	}
}

func TestMatchBinding(t *testing.T) {
	const jkt = "0ZcOCORZNYy-DWpqq30jZyJGHTN0d2HglBV3uiguA4I"

	tests := []struct {
		name       string
		payload    string
		thumbprint string
		wantReason ReasonCode
	}{
		{"no cnf", `{"sub":"u1"}`, jkt, ReasonMissingBinding},
		{"cnf without jkt", `{"cnf":{}}`, jkt, ReasonMissingBinding},
		{"jkt mismatch", `{"cnf":{"jkt":"different"}}`, jkt, ReasonBindingMismatch},
		{"jkt case mismatch", `{"cnf":{"jkt":"` + jkt + `"}}`, "0zcocorznyy-dwpqq30jzyjghtn0d2hglbv3uigua4i", ReasonBindingMismatch},
		{"exact match", `{"cnf":{"jkt":"` + jkt + `"}}`, jkt, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, perr := parseAccessToken("a." + b64(tt.payload) + ".c")
			if perr != nil {
				t.Fatalf("parseAccessToken: %v", perr)
			}
			got := tok.matchBinding(tt.thumbprint)
			if tt.wantReason == "" {
				if got != nil {
					t.Fatalf("expected match, got %v", got)
				}
				return
			}
			if got == nil || got.Reason != tt.wantReason {
				t.Errorf("reason = %v, want %s", got, tt.wantReason)
			}
		})
	}
}

func TestDerivedClaims(t *testing.T) {
	payload := `{"sub":"u1","iss":"https://issuer.example.com","exp":1700000000,"admin":true,"ratio":1.5,"cnf":{"jkt":"x"},"groups":["a","b"]}`
	tok, perr := parseAccessToken("a." + b64(payload) + ".c")
	if perr != nil {
		t.Fatalf("parseAccessToken: %v", perr)
	}

	claims := tok.derivedClaims()
	want := map[string]string{
		"sub":   "u1",
		"iss":   "https://issuer.example.com",
		"exp":   "1700000000",
		"admin": "true",
		"ratio": "1.5",
	}
	for name, value := range want {
		if claims[name] != value {
			t.Errorf("claims[%q] = %q, want %q", name, claims[name], value)
		}
	}
	// Composite claims are not flattened.
	if _, ok := claims["cnf"]; ok {
		t.Error("cnf should not appear in derived claims")
	}
	if _, ok := claims["groups"]; ok {
		t.Error("array claims should not appear in derived claims")
	}
}

func TestRequiresProof(t *testing.T) {
	key := testutil.GenerateRSAKey(t)
	jkt, err := Thumbprint(key.Public())
	if err != nil {
		t.Fatalf("Thumbprint: %v", err)
	}

	bound := testutil.MintBoundToken(t, jkt, nil)
	if !RequiresProof(bound) {
		t.Error("bound token should require a proof")
	}

	unbound := testutil.MintAccessToken(t, map[string]any{
		"sub": "u1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if RequiresProof(unbound) {
		t.Error("unbound token should not require a proof")
	}

	if RequiresProof("garbage") {
		t.Error("unparseable token should not require a proof")
	}
}

func TestBoundThumbprint(t *testing.T) {
	key := testutil.GenerateECKey(t)
	jkt, err := Thumbprint(key.Public())
	if err != nil {
		t.Fatalf("Thumbprint: %v", err)
	}

	bound := testutil.MintBoundToken(t, jkt, nil)
	if got := BoundThumbprint(bound); got != jkt {
		t.Errorf("BoundThumbprint = %q, want %q", got, jkt)
	}
	if got := BoundThumbprint("garbage"); got != "" {
		t.Errorf("BoundThumbprint of garbage = %q, want empty", got)
	}
}

func TestCheckAccessTokenHash(t *testing.T) {
	const token = "header.payload.signature"

	if perr := checkAccessTokenHash("", token); perr != nil {
		t.Errorf("absent ath should pass, got %v", perr)
	}
	if perr := checkAccessTokenHash(hashToken(token), token); perr != nil {
		t.Errorf("matching ath should pass, got %v", perr)
	}
	if perr := checkAccessTokenHash(hashToken("other"), token); perr == nil {
		t.Error("mismatched ath should fail")
	}
}

func b64(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}
