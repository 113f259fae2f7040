package license

import (
	"fmt"
	"time"
)

// LifetimeExpiry is the sentinel expiry meaning the license never expires.
// It is compared by instant, so any equal timestamp decodes back to the
// sentinel regardless of serialization round-trips.
var LifetimeExpiry = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// DurationPreset identifies one of the fixed issuance durations offered
// by the operator tool.
type DurationPreset string

const (
	DurationOneMonth    DurationPreset = "1m"
	DurationThreeMonths DurationPreset = "3m"
	DurationSixMonths   DurationPreset = "6m"
	DurationOneYear     DurationPreset = "1y"
	DurationLifetime    DurationPreset = "lifetime"
)

// ParseDurationPreset normalizes a user-supplied duration selection.
func ParseDurationPreset(s string) (DurationPreset, error) {
	switch DurationPreset(s) {
	case DurationOneMonth, DurationThreeMonths, DurationSixMonths, DurationOneYear, DurationLifetime:
		return DurationPreset(s), nil
	default:
		return "", fmt.Errorf("unknown duration preset %q (want 1m, 3m, 6m, 1y or lifetime)", s)
	}
}

// ExpiryFrom computes the expiry timestamp for a license issued at the
// given instant. Calendar months are used, matching what a customer is
// sold, rather than fixed-length 30-day periods.
func (p DurationPreset) ExpiryFrom(issued time.Time) (time.Time, error) {
	issued = issued.UTC()
	switch p {
	case DurationOneMonth:
		return issued.AddDate(0, 1, 0), nil
	case DurationThreeMonths:
		return issued.AddDate(0, 3, 0), nil
	case DurationSixMonths:
		return issued.AddDate(0, 6, 0), nil
	case DurationOneYear:
		return issued.AddDate(1, 0, 0), nil
	case DurationLifetime:
		return LifetimeExpiry, nil
	default:
		return time.Time{}, fmt.Errorf("unknown duration preset %q", p)
	}
}

// Label returns the preset in a human readable form for display and for
// the history log.
func (p DurationPreset) Label() string {
	switch p {
	case DurationOneMonth:
		return "1 month"
	case DurationThreeMonths:
		return "3 months"
	case DurationSixMonths:
		return "6 months"
	case DurationOneYear:
		return "1 year"
	case DurationLifetime:
		return "lifetime"
	default:
		return string(p)
	}
}

// Record is the signed license payload. Every field here is covered by
// the detached signature; nothing may be mutated after signing without
// invalidating the token.
type Record struct {
	CustomerName string    `json:"customer_name"`
	HardwareID   string    `json:"hardware_id"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	Features     []string  `json:"features,omitempty"`
}

// IsLifetime reports whether the record carries the never-expires sentinel.
func (r Record) IsLifetime() bool {
	return r.ExpiresAt.Equal(LifetimeExpiry)
}

// ExpiredAt reports whether the record is expired at the given instant.
// The lifetime sentinel never expires.
func (r Record) ExpiredAt(now time.Time) bool {
	if r.IsLifetime() {
		return false
	}
	return now.After(r.ExpiresAt)
}

// HasFeature reports whether a capability token is enabled. Unknown
// flags carried by newer issuers are simply never asked about, which is
// the whole forward-compatibility story.
func (r Record) HasFeature(name string) bool {
	for _, f := range r.Features {
		if f == name {
			return true
		}
	}
	return false
}
