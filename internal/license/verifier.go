package license

import (
	"context"
	"crypto/ed25519"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// State is the outcome of a verification run. All states except
// StateValid deny; the order of checks in Verify fixes which one wins
// when several would apply.
type State string

const (
	StateValid            State = "valid"
	StateMissing          State = "missing"
	StateMalformed        State = "malformed"
	StateInvalidSignature State = "invalid_signature"
	StateHardwareMismatch State = "hardware_mismatch"
	StateExpired          State = "expired"
)

// Allowed reports whether the state unlocks the application.
func (s State) Allowed() bool {
	return s == StateValid
}

// Err maps a deny state to its sentinel error; StateValid maps to nil.
func (s State) Err() error {
	switch s {
	case StateValid:
		return nil
	case StateMissing:
		return ErrLicenseMissing
	case StateMalformed:
		return ErrTokenMalformed
	case StateInvalidSignature:
		return ErrInvalidSignature
	case StateHardwareMismatch:
		return ErrHardwareMismatch
	case StateExpired:
		return ErrLicenseExpired
	default:
		return ErrTokenMalformed
	}
}

// Verdict is the full verification result. For deny states reached
// after a successful decode, the record fields are still populated so
// the UI can show expiry dates on renewal prompts.
type Verdict struct {
	State        State
	CustomerName string
	ExpiresAt    time.Time
	Lifetime     bool
	Features     []string
}

// Allowed reports whether the verdict unlocks the application.
func (v Verdict) Allowed() bool {
	return v.State.Allowed()
}

// FingerprintFunc supplies the local machine fingerprint at verification
// time. It is a function, not a value, so long-running processes pick up
// the manager's cache policy rather than a stale snapshot.
type FingerprintFunc func() string

// Verifier evaluates license tokens against the embedded public key and
// the local hardware fingerprint. Verification is a pure function of
// (token, now, fingerprint, key); a Verifier is safe for concurrent use.
type Verifier struct {
	publicKey   ed25519.PublicKey
	fingerprint FingerprintFunc
	codec       Codec
	logger      *slog.Logger
	metrics     *Metrics
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierLogger sets the logger used for debug diagnostics.
func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		v.logger = logger.With(slog.String("component", "license_verifier"))
	}
}

// WithVerifierMetrics attaches verification metrics.
func WithVerifierMetrics(m *Metrics) VerifierOption {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// NewVerifier builds a verifier around an immutable public key and a
// fingerprint source.
func NewVerifier(publicKey ed25519.PublicKey, fingerprint FingerprintFunc, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		publicKey:   publicKey,
		fingerprint: fingerprint,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify runs the full check sequence, short-circuiting on the first
// failure: presence, decode, signature, hardware binding, expiry.
func (v *Verifier) Verify(ctx context.Context, token string, now time.Time) Verdict {
	start := time.Now()
	verdict := v.verify(token, now)

	if v.metrics != nil {
		v.metrics.VerifyAttempts.Add(ctx, 1)
		v.metrics.VerifyResults.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", string(verdict.State)),
		))
		v.metrics.VerifyDuration.Record(ctx, time.Since(start).Seconds())
	}

	v.logger.DebugContext(ctx, "license verification completed",
		slog.String("state", string(verdict.State)),
		slog.Duration("duration", time.Since(start)),
	)
	return verdict
}

func (v *Verifier) verify(token string, now time.Time) Verdict {
	if strings.TrimSpace(token) == "" {
		return Verdict{State: StateMissing}
	}

	rec, payload, sig, err := v.codec.Decode(token)
	if err != nil {
		return Verdict{State: StateMalformed}
	}

	if len(sig) != ed25519.SignatureSize || !ed25519.Verify(v.publicKey, payload, sig) {
		return Verdict{State: StateInvalidSignature}
	}

	verdict := Verdict{
		CustomerName: rec.CustomerName,
		ExpiresAt:    rec.ExpiresAt,
		Lifetime:     rec.IsLifetime(),
		Features:     rec.Features,
	}

	if v.fingerprint() != rec.HardwareID {
		verdict.State = StateHardwareMismatch
		return verdict
	}

	if rec.ExpiredAt(now) {
		verdict.State = StateExpired
		return verdict
	}

	verdict.State = StateValid
	return verdict
}

// VerifyFile loads a token from disk and verifies it. A missing or
// unreadable file yields StateMissing.
func (v *Verifier) VerifyFile(ctx context.Context, path string, now time.Time) Verdict {
	data, err := os.ReadFile(path)
	if err != nil {
		v.logger.DebugContext(ctx, "license file not readable",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return Verdict{State: StateMissing}
	}
	return v.Verify(ctx, string(data), now)
}
