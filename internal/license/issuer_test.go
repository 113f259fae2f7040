package license

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer(t *testing.T) (*Issuer, ed25519.PublicKey, *HistoryStore) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	history := NewHistoryStore(filepath.Join(t.TempDir(), "history.csv"), nil)
	issuer := NewIssuer(priv, history, WithIssuerClock(func() time.Time {
		return time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	}))
	return issuer, pub, history
}

func TestIssueProducesVerifiableToken(t *testing.T) {
	issuer, pub, history := newTestIssuer(t)

	token, entry, err := issuer.Issue(context.Background(), IssueRequest{
		CustomerName: "Acme Corp",
		HardwareID:   "HW-123",
		Duration:     DurationOneYear,
		Features:     []string{"reports"},
	})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.NotEmpty(t, entry.ID)

	v := NewVerifier(pub, fixedFingerprint("HW-123"))
	verdict := v.Verify(context.Background(), token, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC))
	require.Equal(t, StateValid, verdict.State)
	assert.Equal(t, "Acme Corp", verdict.CustomerName)
	assert.Equal(t, []string{"reports"}, verdict.Features)

	entries, err := history.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, token, entries[0].Token)
}

func TestIssueLifetime(t *testing.T) {
	issuer, pub, _ := newTestIssuer(t)

	token, entry, err := issuer.Issue(context.Background(), IssueRequest{
		CustomerName: "Forever LLC",
		HardwareID:   "HW-999",
		Duration:     DurationLifetime,
	})
	require.NoError(t, err)
	assert.True(t, entry.ExpiresAt.Equal(LifetimeExpiry))

	v := NewVerifier(pub, fixedFingerprint("HW-999"))
	verdict := v.Verify(context.Background(), token, time.Date(2999, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, StateValid, verdict.State)
}

func TestIssueDurationPresets(t *testing.T) {
	// The test issuer clock is fixed at 2026-06-01T12:00:00Z; presets
	// add calendar months, not 30-day blocks.
	tests := []struct {
		preset DurationPreset
		expiry time.Time
	}{
		{DurationOneMonth, time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)},
		{DurationThreeMonths, time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)},
		{DurationSixMonths, time.Date(2026, 12, 1, 12, 0, 0, 0, time.UTC)},
		{DurationOneYear, time.Date(2027, 6, 1, 12, 0, 0, 0, time.UTC)},
		{DurationLifetime, LifetimeExpiry},
	}
	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			issuer, _, _ := newTestIssuer(t)
			_, entry, err := issuer.Issue(context.Background(), IssueRequest{
				CustomerName: "Acme Corp",
				HardwareID:   "HW-123",
				Duration:     tt.preset,
			})
			require.NoError(t, err)
			assert.True(t, tt.expiry.Equal(entry.ExpiresAt), "got %s", entry.ExpiresAt)
		})
	}
}

func TestIssueRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  IssueRequest
	}{
		{"missing customer", IssueRequest{HardwareID: "HW-123", Duration: DurationOneYear}},
		{"missing hardware", IssueRequest{CustomerName: "Acme", Duration: DurationOneYear}},
		{"hardware too short", IssueRequest{CustomerName: "Acme", HardwareID: "ab", Duration: DurationOneYear}},
		{"missing duration", IssueRequest{CustomerName: "Acme", HardwareID: "HW-123"}},
		{"unknown duration", IssueRequest{CustomerName: "Acme", HardwareID: "HW-123", Duration: "2w"}},
		{"empty feature", IssueRequest{CustomerName: "Acme", HardwareID: "HW-123", Duration: DurationOneYear, Features: []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer, _, history := newTestIssuer(t)
			_, _, err := issuer.Issue(context.Background(), tt.req)
			require.Error(t, err)

			entries, lerr := history.List()
			require.NoError(t, lerr)
			assert.Empty(t, entries, "rejected issuance must leave no history row")
		})
	}
}

// Issuance must fail outright when the audit row cannot be written; a
// token without a trace is worse than no token.
func TestIssueAbortsWhenHistoryUnavailable(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	// The history path points at a directory, so the append fails.
	dir := t.TempDir()
	history := NewHistoryStore(dir, nil)
	issuer := NewIssuer(priv, history)

	_, _, err = issuer.Issue(context.Background(), IssueRequest{
		CustomerName: "Acme Corp",
		HardwareID:   "HW-123",
		Duration:     DurationOneYear,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
}

func TestIssueSameInputsTwiceYieldsTwoEntries(t *testing.T) {
	issuer, pub, history := newTestIssuer(t)
	req := IssueRequest{
		CustomerName: "Acme Corp",
		HardwareID:   "HW-123",
		Duration:     DurationOneYear,
	}

	tokenA, entryA, err := issuer.Issue(context.Background(), req)
	require.NoError(t, err)
	tokenB, entryB, err := issuer.Issue(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, entryA.ID, entryB.ID)

	v := NewVerifier(pub, fixedFingerprint("HW-123"))
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, StateValid, v.Verify(context.Background(), tokenA, now).State)
	assert.Equal(t, StateValid, v.Verify(context.Background(), tokenB, now).State)

	entries, err := history.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
