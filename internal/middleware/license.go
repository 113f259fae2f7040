package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/infrastructure"
	"nodelock/internal/license"
)

// LicenseGate blocks API routes until the license verifies. It keeps a
// short-lived cache of the last verdict so request hot paths do not
// re-read the token file, while the scattered license.Guard call sites
// inside feature code still re-verify independently.
type LicenseGate struct {
	verifier  *license.Verifier
	tokenPath string
	logger    *slog.Logger
	now       func() time.Time

	excludePaths    []string
	excludePrefixes []string

	cacheMu     sync.RWMutex
	cached      license.Verdict
	cacheExpiry time.Time
	cacheTTL    time.Duration
}

// GateOption customizes a LicenseGate.
type GateOption func(*LicenseGate)

// WithGateClock overrides the time source, for tests.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *LicenseGate) {
		g.now = now
	}
}

// WithGateCacheTTL overrides how long a verdict is trusted before the
// token file is re-verified.
func WithGateCacheTTL(ttl time.Duration) GateOption {
	return func(g *LicenseGate) {
		g.cacheTTL = ttl
	}
}

// NewLicenseGate creates the gate middleware. License management and
// health endpoints stay reachable so a customer can enter a key on an
// unlicensed installation.
func NewLicenseGate(verifier *license.Verifier, tokenPath string, logger *slog.Logger, opts ...GateOption) *LicenseGate {
	g := &LicenseGate{
		verifier:  verifier,
		tokenPath: tokenPath,
		logger:    logger.With(slog.String("component", "license_gate")),
		now:       time.Now,
		cacheTTL:  time.Minute,
		excludePaths: []string{
			"/",
			"/api/health",
			"/api/version",
			"/api/license/status",
			"/api/license/activate",
			"/api/license/fingerprint",
			"/metrics",
			"/favicon.ico",
		},
		excludePrefixes: []string{
			"/static/",
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handler returns the gate as chi middleware.
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if g.shouldExclude(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		verdict := g.verdict(ctx)
		if verdict.Allowed() {
			next.ServeHTTP(w, r)
			return
		}

		traceID := infrastructure.GetTraceID(ctx)
		g.logger.WarnContext(ctx, "request blocked by license gate",
			slog.String("path", r.URL.Path),
			slog.String("state", string(verdict.State)),
		)
		render.Render(w, r, apperrors.MapVerdict(verdict, traceID))
	})
}

// Invalidate drops the cached verdict, forcing re-verification on the
// next request. Called after a new token is activated.
func (g *LicenseGate) Invalidate() {
	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	g.cacheExpiry = time.Time{}
}

func (g *LicenseGate) verdict(ctx context.Context) license.Verdict {
	now := g.now()

	g.cacheMu.RLock()
	if now.Before(g.cacheExpiry) {
		cached := g.cached
		g.cacheMu.RUnlock()
		return cached
	}
	g.cacheMu.RUnlock()

	verdict := g.verifier.VerifyFile(ctx, g.tokenPath, now)

	g.cacheMu.Lock()
	g.cached = verdict
	g.cacheExpiry = now.Add(g.cacheTTL)
	g.cacheMu.Unlock()
	return verdict
}

func (g *LicenseGate) shouldExclude(path string) bool {
	for _, p := range g.excludePaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
