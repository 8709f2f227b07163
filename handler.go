package dpop

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/authgate/dpop-gateway/instrumentation"
	"github.com/authgate/dpop-gateway/security"
)

// maxLogValueLength bounds attacker-controlled strings in log output.
const maxLogValueLength = 256

// HandlerConfig configures the proof-enforcing middleware.
type HandlerConfig struct {
	// RateLimitPerSecond is the per-client request rate (default 20)
	RateLimitPerSecond int

	// RateLimitBurst is the per-client burst allowance (default 40)
	RateLimitBurst int

	// TrustProxy enables X-Forwarded-* handling for client IPs and
	// request URI reconstruction. Only enable behind a trusted proxy.
	TrustProxy bool

	// TrustedProxyCount is how many proxies to trust from the right in
	// X-Forwarded-For (default 1 when TrustProxy is set)
	TrustedProxyCount int

	// PublicBaseURL, when set, overrides scheme and host for request URI
	// reconstruction, e.g. "https://api.example.com". Takes precedence
	// over forwarding headers.
	PublicBaseURL string

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger

	// Instrumentation is the optional metrics and tracing provider
	Instrumentation *instrumentation.Instrumentation
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.RateLimitPerSecond <= 0 {
		c.RateLimitPerSecond = 20
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 40
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Handler enforces DPoP proof validation in front of protected HTTP
// handlers. It owns the transport-level concerns (header extraction,
// challenge responses, rate limiting) and delegates proof semantics to
// the Validator.
type Handler struct {
	validator *Validator
	cfg       HandlerConfig
	logger    *slog.Logger
	limiter   *security.RateLimiter
	inst      *instrumentation.Instrumentation
}

// NewHandler creates a proof-enforcing middleware around the validator.
func NewHandler(validator *Validator, cfg HandlerConfig) *Handler {
	cfg = cfg.withDefaults()
	return &Handler{
		validator: validator,
		cfg:       cfg,
		logger:    cfg.Logger,
		limiter:   security.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, cfg.Logger),
		inst:      cfg.Instrumentation,
	}
}

// Close releases resources held by the middleware.
func (h *Handler) Close() {
	h.limiter.Stop()
}

// Identity is the validated caller identity attached to requests that
// pass proof validation.
type Identity struct {
	// Claims holds the access token's flattened top-level claims.
	Claims map[string]string

	// Thumbprint is the proof key's RFC 7638 thumbprint.
	Thumbprint string
}

// identityContextKey is the context key for validated identities
type identityContextKey struct{}

// ContextWithIdentity attaches a validated identity to the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext retrieves the validated identity, or nil when the
// request did not carry a proof-bound token.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}

// EnforceProof wraps next with DPoP enforcement. Requests carrying a
// proof-bound access token must present a valid proof; requests with an
// unbound token pass through untouched so the gateway can front a mixed
// population of bearer and DPoP clients.
func (h *Handler) EnforceProof(next http.Handler) http.Handler {
	wrapped := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fail closed: a panic in enforcement must produce a 500, never
		// fall through to the protected handler.
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic during proof enforcement",
					"panic", rec,
					"stack", string(debug.Stack()),
					"request_id", security.GetRequestID(r.Context()),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()

		security.SetSecurityHeaders(w, h.cfg.PublicBaseURL)

		clientIP := security.GetClientIP(r, h.cfg.TrustProxy, h.cfg.TrustedProxyCount)
		if !h.limiter.Allow(clientIP) {
			h.logger.Warn("rate limit exceeded", "ip", clientIP)
			if h.inst != nil {
				h.inst.RecordRateLimitExceeded(r.Context())
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		token, ok := extractAccessToken(r)
		if !ok {
			// No credential at all; authentication policy belongs to the
			// protected handler.
			next.ServeHTTP(w, r)
			return
		}

		proof := r.Header.Get(ProofHeaderName)
		if proof == "" {
			if RequiresProof(token) {
				// A bound token without a proof is a client request error,
				// not a proof failure, so the challenge uses the OAuth
				// invalid_request code.
				h.logger.Info("request rejected",
					"reason", "proof_required",
					"request_id", security.GetRequestID(r.Context()),
					"method", r.Method,
					"path", sanitizeForLog(r.URL.Path),
				)
				w.Header().Set("WWW-Authenticate",
					`DPoP error="invalid_request", error_description="access token requires a DPoP proof"`)
				http.Error(w, "DPoP proof required", http.StatusUnauthorized)
				return
			}
			// Unbound bearer token; nothing to enforce.
			next.ServeHTTP(w, r)
			return
		}

		result := h.validator.Validate(r.Context(), proof, token, r.Method, h.requestURI(r))
		if h.inst != nil {
			h.inst.RecordValidation(r.Context(), string(result.Reason()), result.OK())
		}
		if !result.OK() {
			h.reject(w, r, result)
			return
		}

		ctx := ContextWithIdentity(r.Context(), &Identity{
			Claims:     result.Claims(),
			Thumbprint: result.Thumbprint(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})

	return security.RequestIDMiddleware(wrapped)
}

// extractAccessToken pulls the access token from the Authorization header.
// Both the Bearer and DPoP authorization schemes carry the token the same
// way; clients migrating to proof binding commonly still send Bearer.
func extractAccessToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(auth, " ")
	if !found {
		return "", false
	}
	switch {
	case strings.EqualFold(scheme, "DPoP"), strings.EqualFold(scheme, "Bearer"):
		token = strings.TrimSpace(token)
		return token, token != ""
	}
	return "", false
}

// requestURI reconstructs the external URI of the inbound request for
// comparison against the proof's htu claim. Query and fragment are excluded
// per the htu definition. Behind a proxy the request object sees internal
// scheme and host, so the reconstruction honors PublicBaseURL first and
// forwarding headers second.
func (h *Handler) requestURI(r *http.Request) string {
	path := r.URL.EscapedPath()
	if path == "" {
		path = "/"
	}

	if h.cfg.PublicBaseURL != "" {
		return strings.TrimSuffix(h.cfg.PublicBaseURL, "/") + path
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if h.cfg.TrustProxy {
		if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
			scheme = forwarded
		}
		if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
			host = forwarded
		}
	}
	return fmt.Sprintf("%s://%s%s", scheme, host, path)
}

// reject writes the rejection as an RFC 9449 challenge response.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, result Result) {
	h.logger.Info("request rejected",
		"reason", string(result.Reason()),
		"request_id", security.GetRequestID(r.Context()),
		"method", r.Method,
		"path", sanitizeForLog(r.URL.Path),
	)
	writeChallenge(w, result)
}

// writeChallenge writes a WWW-Authenticate DPoP challenge carrying the
// rejection reason, per the OAuth error response conventions.
func writeChallenge(w http.ResponseWriter, result Result) {
	challenge := fmt.Sprintf("DPoP error=%q, error_description=%q",
		string(result.Reason()), result.Message())
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, result.Message(), result.Status())
}

// sanitizeForLog strips control characters from attacker-controlled values
// and truncates them, preventing log injection and log flooding.
func sanitizeForLog(s string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	if len(sanitized) > maxLogValueLength {
		return sanitized[:maxLogValueLength] + "...(truncated)"
	}
	return sanitized
}
