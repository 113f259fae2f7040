package http

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "nodelock/internal/errors"
	"nodelock/internal/infrastructure"
	"nodelock/internal/license"
)

// LicenseHandler serves the license status and activation endpoints.
// Activation is entirely local: the pasted token is verified against
// the embedded key and the machine fingerprint, and written to the
// license file only if it passes.
type LicenseHandler struct {
	verifier    *license.Verifier
	fingerprint license.FingerprintFunc
	tokenPath   string
	logger      *slog.Logger
	invalidate  func()
	now         func() time.Time
}

// NewLicenseHandler creates the license endpoint handler. invalidate is
// called after a successful activation so the gate drops its cached
// verdict; pass nil if there is nothing to invalidate.
func NewLicenseHandler(verifier *license.Verifier, fingerprint license.FingerprintFunc, tokenPath string, logger *slog.Logger, invalidate func()) *LicenseHandler {
	if invalidate == nil {
		invalidate = func() {}
	}
	return &LicenseHandler{
		verifier:    verifier,
		fingerprint: fingerprint,
		tokenPath:   tokenPath,
		logger:      logger.With(slog.String("component", "license_handler")),
		invalidate:  invalidate,
		now:         time.Now,
	}
}

// Routes mounts the license endpoints on a chi router.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", h.Status)
	r.Post("/activate", h.Activate)
	r.Get("/fingerprint", h.Fingerprint)
	return r
}

// StatusResponse is the body of GET /api/license/status.
type StatusResponse struct {
	Status       string   `json:"status"`
	CustomerName string   `json:"customer_name,omitempty"`
	ExpiresAt    string   `json:"expires_at,omitempty"`
	Lifetime     bool     `json:"lifetime,omitempty"`
	Features     []string `json:"features,omitempty"`
	DaysLeft     int      `json:"days_left,omitempty"`
}

// Status reports the current license verdict for this installation.
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()
	verdict := h.verifier.VerifyFile(ctx, h.tokenPath, now)

	resp := StatusResponse{Status: statusLabel(verdict.State)}
	if verdict.State == license.StateValid || verdict.State == license.StateExpired {
		resp.CustomerName = verdict.CustomerName
		resp.Lifetime = verdict.Lifetime
		resp.Features = verdict.Features
		if !verdict.Lifetime {
			resp.ExpiresAt = verdict.ExpiresAt.UTC().Format(time.RFC3339)
			if days := int(verdict.ExpiresAt.Sub(now).Hours() / 24); days > 0 {
				resp.DaysLeft = days
			}
		}
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// ActivateRequest is the body of POST /api/license/activate.
type ActivateRequest struct {
	LicenseKey string `json:"license_key"`
}

// Activate verifies a pasted token and, on success, installs it as the
// license file. Deny responses go through MapVerdict so they never
// reveal which check failed beyond expired-vs-invalid.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	var req ActivateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apperrors.NewBadRequest("request body must be JSON with a license_key field", traceID))
		return
	}
	token := strings.TrimSpace(req.LicenseKey)
	if token == "" {
		render.Render(w, r, apperrors.NewBadRequest("license_key must not be empty", traceID))
		return
	}

	verdict := h.verifier.Verify(ctx, token, h.now())
	if !verdict.Allowed() {
		h.logger.WarnContext(ctx, "activation rejected",
			slog.String("state", string(verdict.State)),
		)
		render.Render(w, r, apperrors.MapVerdict(verdict, traceID))
		return
	}

	if err := writeTokenFile(h.tokenPath, token); err != nil {
		h.logger.ErrorContext(ctx, "failed to write license file",
			slog.String("path", h.tokenPath),
			slog.String("error", err.Error()),
		)
		render.Render(w, r, apperrors.NewInternalError(traceID))
		return
	}
	h.invalidate()

	h.logger.InfoContext(ctx, "license activated",
		slog.String("customer", verdict.CustomerName),
		slog.Bool("lifetime", verdict.Lifetime),
	)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, StatusResponse{
		Status:       statusLabel(verdict.State),
		CustomerName: verdict.CustomerName,
		Lifetime:     verdict.Lifetime,
		Features:     verdict.Features,
		ExpiresAt:    formatExpiry(verdict),
	})
}

// FingerprintResponse is the body of GET /api/license/fingerprint.
type FingerprintResponse struct {
	Fingerprint string `json:"fingerprint"`
}

// Fingerprint exposes the machine fingerprint so the customer can send
// it to the operator when requesting a license.
func (h *LicenseHandler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, FingerprintResponse{Fingerprint: h.fingerprint()})
}

func statusLabel(state license.State) string {
	switch state {
	case license.StateValid:
		return "active"
	case license.StateMissing:
		return "not_activated"
	case license.StateExpired:
		return "expired"
	default:
		return "invalid"
	}
}

func formatExpiry(verdict license.Verdict) string {
	if verdict.Lifetime {
		return ""
	}
	return verdict.ExpiresAt.UTC().Format(time.RFC3339)
}

// writeTokenFile installs the token atomically so a crash mid-write
// cannot leave a truncated license file.
func writeTokenFile(path, token string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
