package http

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodelock/internal/license"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type handlerFixture struct {
	handler *LicenseHandler
	priv    ed25519.PrivateKey
	path    string
	now     time.Time
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "license.key")
	verifier := license.NewVerifier(pub, func() string { return "HW-123" })

	h := NewLicenseHandler(verifier, func() string { return "HW-123" }, path, testLogger(), nil)
	h.now = func() time.Time { return now }
	return &handlerFixture{handler: h, priv: priv, path: path, now: now}
}

func (f *handlerFixture) token(t *testing.T, rec license.Record) string {
	t.Helper()
	payload, err := license.CanonicalPayload(rec)
	require.NoError(t, err)
	token, err := license.Codec{}.Encode(rec, ed25519.Sign(f.priv, payload))
	require.NoError(t, err)
	return token
}

func (f *handlerFixture) validRecord() license.Record {
	return license.Record{
		CustomerName: "Acme Corp",
		HardwareID:   "HW-123",
		IssuedAt:     f.now,
		ExpiresAt:    f.now.AddDate(1, 0, 0),
		Features:     []string{"reports"},
	}
}

func TestStatusNotActivated(t *testing.T) {
	f := newHandlerFixture(t)

	rr := httptest.NewRecorder()
	f.handler.Status(rr, httptest.NewRequest(http.MethodGet, "/api/license/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "not_activated", body.Status)
}

func TestStatusActive(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, os.WriteFile(f.path, []byte(f.token(t, f.validRecord())), 0o600))

	rr := httptest.NewRecorder()
	f.handler.Status(rr, httptest.NewRequest(http.MethodGet, "/api/license/status", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "active", body.Status)
	assert.Equal(t, "Acme Corp", body.CustomerName)
	assert.Equal(t, []string{"reports"}, body.Features)
	assert.Greater(t, body.DaysLeft, 300)
}

func TestStatusExpired(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.validRecord()
	rec.ExpiresAt = f.now.AddDate(0, -1, 0)
	require.NoError(t, os.WriteFile(f.path, []byte(f.token(t, rec)), 0o600))

	rr := httptest.NewRecorder()
	f.handler.Status(rr, httptest.NewRequest(http.MethodGet, "/api/license/status", nil))

	var body StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "expired", body.Status)
	assert.Equal(t, "Acme Corp", body.CustomerName)
}

func activateRequest(token string) *http.Request {
	body := strings.NewReader(`{"license_key":` + strconv.Quote(token) + `}`)
	req := httptest.NewRequest(http.MethodPost, "/api/license/activate", body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestActivateValidToken(t *testing.T) {
	f := newHandlerFixture(t)
	invalidated := false
	f.handler.invalidate = func() { invalidated = true }

	token := f.token(t, f.validRecord())
	rr := httptest.NewRecorder()
	f.handler.Activate(rr, activateRequest(token))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, invalidated)

	// The token is installed on disk and subsequent status calls see it.
	data, err := os.ReadFile(f.path)
	require.NoError(t, err)
	assert.Equal(t, token, strings.TrimSpace(string(data)))
}

func TestActivateRejectsBadTokens(t *testing.T) {
	f := newHandlerFixture(t)

	otherHardware := f.validRecord()
	otherHardware.HardwareID = "HW-456"
	expired := f.validRecord()
	expired.ExpiresAt = f.now.AddDate(0, -1, 0)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"garbage", "not-a-token", http.StatusForbidden},
		{"wrong hardware", f.token(t, otherHardware), http.StatusForbidden},
		{"expired", f.token(t, expired), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			f.handler.Activate(rr, activateRequest(tt.token))

			assert.Equal(t, tt.status, rr.Code)
			_, err := os.Stat(f.path)
			assert.True(t, os.IsNotExist(err), "rejected token must not be installed")
		})
	}
}

func TestActivateRejectsBadRequests(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "license please"},
		{"empty key", `{"license_key":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/license/activate", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			f.handler.Activate(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestFingerprintEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	rr := httptest.NewRecorder()
	f.handler.Fingerprint(rr, httptest.NewRequest(http.MethodGet, "/api/license/fingerprint", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body FingerprintResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "HW-123", body.Fingerprint)
}
