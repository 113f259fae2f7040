package license

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// IssueRequest carries the operator's inputs for one issuance.
type IssueRequest struct {
	CustomerName string         `validate:"required,min=1,max=120"`
	HardwareID   string         `validate:"required,min=4,max=128"`
	Duration     DurationPreset `validate:"required"`
	Features     []string       `validate:"dive,required,max=64"`
}

// Issuer signs license records with the operator's private key and
// records every issuance in the history log. Issuing the same inputs
// twice produces two independent valid tokens; re-issuing is a
// legitimate operator action, so there is no de-duplication.
type Issuer struct {
	privateKey ed25519.PrivateKey
	codec      Codec
	history    *HistoryStore
	validate   *validator.Validate
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

// IssuerOption customizes an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerLogger sets the issuer's logger.
func WithIssuerLogger(logger *slog.Logger) IssuerOption {
	return func(i *Issuer) {
		i.logger = logger.With(slog.String("component", "license_issuer"))
	}
}

// WithIssuerMetrics attaches issuance metrics.
func WithIssuerMetrics(m *Metrics) IssuerOption {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// WithIssuerClock overrides the time source, for tests.
func WithIssuerClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.now = now
	}
}

// NewIssuer builds an issuer around a private key and a history store.
func NewIssuer(privateKey ed25519.PrivateKey, history *HistoryStore, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		privateKey: privateKey,
		history:    history,
		validate:   validator.New(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue builds, signs and encodes a license token and appends the audit
// entry. A history failure aborts the issuance: the operator must never
// hand out a token that left no trace.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (string, *HistoryEntry, error) {
	if i.metrics != nil {
		i.metrics.IssueAttempts.Add(ctx, 1)
	}

	token, entry, err := i.issue(req)
	if err != nil {
		if i.metrics != nil {
			i.metrics.IssueFailures.Add(ctx, 1)
		}
		i.logger.ErrorContext(ctx, "license issuance failed",
			slog.String("customer", req.CustomerName),
			slog.String("error", err.Error()),
		)
		return "", nil, err
	}

	if i.metrics != nil {
		i.metrics.IssueSuccess.Add(ctx, 1)
	}
	i.logger.InfoContext(ctx, "license issued",
		slog.String("customer", entry.CustomerName),
		slog.String("hardware_id", entry.HardwareID),
		slog.String("duration", string(entry.Duration)),
		slog.Time("expires_at", entry.ExpiresAt),
	)
	return token, entry, nil
}

func (i *Issuer) issue(req IssueRequest) (string, *HistoryEntry, error) {
	if err := i.validate.Struct(req); err != nil {
		return "", nil, fmt.Errorf("invalid issuance request: %w", err)
	}
	if _, err := ParseDurationPreset(string(req.Duration)); err != nil {
		return "", nil, fmt.Errorf("invalid issuance request: %w", err)
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt, err := req.Duration.ExpiryFrom(issuedAt)
	if err != nil {
		return "", nil, err
	}

	rec := Record{
		CustomerName: req.CustomerName,
		HardwareID:   req.HardwareID,
		IssuedAt:     issuedAt,
		ExpiresAt:    expiresAt,
		Features:     req.Features,
	}

	payload, err := CanonicalPayload(rec)
	if err != nil {
		return "", nil, err
	}
	sig := ed25519.Sign(i.privateKey, payload)

	token, err := i.codec.Encode(rec, sig)
	if err != nil {
		return "", nil, err
	}

	entry := &HistoryEntry{
		ID:           uuid.New().String(),
		CustomerName: rec.CustomerName,
		HardwareID:   rec.HardwareID,
		Duration:     req.Duration,
		GeneratedAt:  issuedAt,
		ExpiresAt:    expiresAt,
		Token:        token,
	}
	if i.history != nil {
		if err := i.history.Append(entry); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
		}
	}
	return token, entry, nil
}
