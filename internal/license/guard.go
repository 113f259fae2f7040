package license

import (
	"context"
	"log/slog"
	"time"
)

// Guard re-runs license verification at a feature call site. The point
// of having many guard instances scattered through the host application
// is that no single patch disables them all; each site supplies its own
// fallback, so a failed check degrades output instead of raising an
// error a patcher could search for.
type Guard struct {
	verifier  *Verifier
	tokenPath string
	logger    *slog.Logger
	now       func() time.Time
}

// GuardOption customizes a Guard.
type GuardOption func(*Guard)

// WithGuardClock overrides the time source, for tests.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		g.now = now
	}
}

// WithGuardLogger sets the guard's logger. Guards log at debug level
// only; anything louder would hand an attacker a signpost.
func WithGuardLogger(logger *slog.Logger) GuardOption {
	return func(g *Guard) {
		g.logger = logger
	}
}

// NewGuard binds a verifier to the license file it re-checks.
func NewGuard(verifier *Verifier, tokenPath string, opts ...GuardOption) *Guard {
	g := &Guard{
		verifier:  verifier,
		tokenPath: tokenPath,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Allowed re-verifies the license file right now.
func (g *Guard) Allowed(ctx context.Context) bool {
	verdict := g.verifier.VerifyFile(ctx, g.tokenPath, g.now())
	if !verdict.Allowed() {
		g.logger.DebugContext(ctx, "guard check failed",
			slog.String("state", string(verdict.State)),
		)
	}
	return verdict.Allowed()
}

// Guarded runs op under a license check and returns fallback() on any
// deny state. The fallback result should be plausible degraded output,
// not an error: silent corruption is the documented policy here, traded
// against user-facing clarity to raise the cost of patching the check
// out.
func Guarded[T any](ctx context.Context, g *Guard, op func() T, fallback func() T) T {
	if g.Allowed(ctx) {
		return op()
	}
	return fallback()
}
