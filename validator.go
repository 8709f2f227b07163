package dpop

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/authgate/dpop-gateway/replay"
	"github.com/authgate/dpop-gateway/security"
)

// Validator binds DPoP proofs to access tokens. It is stateless apart from
// the injected replay cache and safe for concurrent use; construct one and
// share it across requests.
type Validator struct {
	cfg    Config
	algs   map[string]bool
	cache  replay.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewValidator creates a validator backed by the given replay cache.
func NewValidator(cache replay.Cache, cfg Config) *Validator {
	cfg = cfg.withDefaults()
	algs := make(map[string]bool, len(cfg.Algorithms))
	for _, alg := range cfg.Algorithms {
		algs[alg] = true
	}
	return &Validator{
		cfg:    cfg,
		algs:   algs,
		cache:  cache,
		logger: cfg.Logger,
		now:    cfg.Clock,
	}
}

// Validate runs the full proof validation sequence against an inbound
// request: structural checks, replay check, key extraction, signature
// verification, token binding, and finally recording the consumed proof
// identifier. It short-circuits on the first failure and never panics or
// returns an error; every outcome is a Result.
//
// method and uri describe the request actually being served. The URI is the
// caller's composition of scheme, host, and path, without query or fragment;
// comparison against the proof's htu claim is a case-insensitive exact
// string match.
func (v *Validator) Validate(ctx context.Context, proof, token, method, uri string) (res Result) {
	// Fail closed on anything unexpected. A panic below must reject the
	// request, not crash the gateway or let the request through.
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("panic during proof validation",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = Reject(ReasonInternalError, "internal error during proof validation")
		}
	}()

	parsed, perr := parseProof(proof, v.algs, v.cfg.MaxProofSize)
	if perr != nil {
		return v.fail(perr)
	}
	if perr := parsed.checkHTTPBinding(method, uri); perr != nil {
		return v.fail(perr)
	}
	if perr := parsed.checkFreshness(v.now(), v.cfg.MaxProofAge, v.cfg.MaxFutureSkew); perr != nil {
		return v.fail(perr)
	}

	// Cheap pre-check before any cryptography. The authoritative,
	// race-free check is the Remember call at the end.
	known, err := v.cache.IsKnown(ctx, parsed.claims.JTI)
	if err != nil {
		return v.cacheFailure(ctx, err)
	}
	if known {
		return v.fail(ErrReplayDetected("proof identifier has already been used"))
	}

	key, perr := extractProofKey(parsed)
	if perr != nil {
		return v.fail(perr)
	}
	thumbprint, err := Thumbprint(key)
	if err != nil {
		return v.fail(ErrInvalidKeyMaterial(err.Error()))
	}

	if perr := verifyProofSignature(proof, parsed.header.Alg, key); perr != nil {
		return v.fail(perr)
	}

	tok, perr := parseAccessToken(token)
	if perr != nil {
		return v.fail(perr)
	}
	if tok.claims.Expiry > 0 && security.IsTokenExpired(time.Unix(tok.claims.Expiry, 0)) {
		return v.fail(ErrInvalidAccessToken("access token has expired"))
	}
	if perr := tok.matchBinding(thumbprint); perr != nil {
		return v.fail(perr)
	}
	if perr := checkAccessTokenHash(parsed.claims.ATH, token); perr != nil {
		return v.fail(perr)
	}

	// All checks passed; consume the proof identifier. Remember is an
	// atomic check-and-set, so of two concurrent requests presenting the
	// same proof exactly one wins.
	replayed, err := v.cache.Remember(ctx, parsed.claims.JTI, v.replayExpiry(tok, parsed))
	if err != nil {
		return v.cacheFailure(ctx, err)
	}
	if replayed {
		return v.fail(ErrReplayDetected("proof identifier has already been used"))
	}

	v.logger.Debug("proof accepted",
		"jti", sanitizeForLog(parsed.claims.JTI),
		"htm", parsed.claims.HTM,
		"thumbprint", thumbprint,
	)
	return Accept(tok.derivedClaims(), thumbprint)
}

// replayExpiry derives how long a consumed proof identifier must stay in the
// cache: until the access token's stated expiry when present, otherwise
// until the proof itself ages out, plus a configurable buffer that absorbs
// clock skew and retried requests near the boundary.
func (v *Validator) replayExpiry(tok *accessToken, parsed *parsedProof) time.Time {
	expiry := time.Unix(parsed.claims.IAT, 0).Add(v.cfg.MaxProofAge)
	if tok.claims.Expiry > 0 {
		if tokenExpiry := time.Unix(tok.claims.Expiry, 0); tokenExpiry.After(expiry) {
			expiry = tokenExpiry
		}
	}
	return expiry.Add(v.cfg.ReplayRecordBuffer)
}

// cacheFailure maps a replay-cache error to a terminal result: cancellation
// propagates as its own reason, anything else fails closed.
func (v *Validator) cacheFailure(ctx context.Context, err error) Result {
	if ctx.Err() != nil {
		return v.fail(ErrCancelled("validation cancelled"))
	}
	v.logger.Error("replay cache unavailable", "error", err)
	return v.fail(ErrInternal("replay cache unavailable"))
}

// fail logs and converts a rejection into a Result.
func (v *Validator) fail(perr *ProofError) Result {
	v.logger.Warn("proof rejected",
		"reason", string(perr.Reason),
		"detail", perr.Description,
	)
	return reject(perr)
}
