package license

import "errors"

// Sentinel errors for the verifier and issuer boundaries. Each verdict
// state maps to exactly one of these so callers can branch with
// errors.Is without inspecting strings.
var (
	ErrLicenseMissing     = errors.New("no license present")
	ErrTokenMalformed     = errors.New("license token malformed")
	ErrInvalidSignature   = errors.New("license signature invalid")
	ErrHardwareMismatch   = errors.New("license issued for a different machine")
	ErrLicenseExpired     = errors.New("license expired")
	ErrPrivateKeyUnusable = errors.New("private key unusable")
	ErrHistoryUnavailable = errors.New("license history unavailable")
)
