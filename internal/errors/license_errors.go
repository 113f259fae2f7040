package errors

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"nodelock/internal/license"
)

// Error codes surfaced by the license endpoints.
const (
	ErrCodeLicenseMissing = "LICENSE_MISSING"
	ErrCodeLicenseInvalid = "LICENSE_INVALID"
	ErrCodeLicenseExpired = "LICENSE_EXPIRED"
)

// MapVerdict maps a verification verdict to an HTTP problem response.
// Deny reasons are deliberately coarse: Expired gets its own message so
// the UI can suggest renewal, but malformed tokens, bad signatures and
// hardware mismatches all collapse into one generic "invalid license"
// so the response never explains which check failed.
func MapVerdict(verdict license.Verdict, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/license#trace-%s", traceID)

	switch verdict.State {
	case license.StateMissing:
		return NewProblemDetails(
			http.StatusPreconditionRequired,
			"/errors/license-missing",
			"License Required",
			"No license has been entered. Please enter your license key to continue.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", ErrCodeLicenseMissing)

	case license.StateExpired:
		pd := NewProblemDetails(
			http.StatusForbidden,
			"/errors/license-expired",
			"License Expired",
			"Your license has expired. Please renew to continue.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", ErrCodeLicenseExpired)
		if !verdict.ExpiresAt.IsZero() {
			pd.WithExtension("expired_at", verdict.ExpiresAt.UTC().Format(time.RFC3339))
		}
		return pd

	default:
		return NewProblemDetails(
			http.StatusForbidden,
			"/errors/license-invalid",
			"Invalid License",
			"The license is not valid for this installation. Please re-enter your license key or contact support.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", ErrCodeLicenseInvalid)
	}
}

// NewInternalError returns the generic 500 problem.
func NewInternalError(traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusInternalServerError,
		"/errors/internal-error",
		"Internal Server Error",
		"An unexpected error occurred while processing your request.",
		fmt.Sprintf("/api#trace-%s", traceID),
	).WithExtension("trace_id", traceID)
}

// NewBadRequest returns a 400 problem with the given detail.
func NewBadRequest(detail, traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusBadRequest,
		"/errors/bad-request",
		"Bad Request",
		detail,
		fmt.Sprintf("/api#trace-%s", traceID),
	).WithExtension("trace_id", traceID)
}

// NewRateLimited returns the 429 problem for the activation endpoint.
func NewRateLimited(traceID string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusTooManyRequests,
		"/errors/rate-limited",
		"Too Many Requests",
		"Too many activation attempts. Please try again later.",
		fmt.Sprintf("/api#trace-%s", traceID),
	).WithExtension("trace_id", traceID).
		WithExtension("retry_after", 60)
}
