package http

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"nodelock/internal/license"
)

func tenRows() []ReportRow {
	rows := make([]ReportRow, 10)
	for i := range rows {
		rows[i] = ReportRow{
			Date:     time.Date(2026, 5, i+1, 0, 0, 0, 0, time.UTC).Format("2006-01-02"),
			Requests: int64(100 + i),
			Errors:   int64(i),
			AvgMs:    12.5,
		}
	}
	return rows
}

func reportFixture(t *testing.T, licensed bool) *ReportHandler {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "license.key")
	if licensed {
		rec := license.Record{
			CustomerName: "Acme Corp",
			HardwareID:   "HW-123",
			IssuedAt:     now,
			ExpiresAt:    now.AddDate(1, 0, 0),
		}
		payload, err := license.CanonicalPayload(rec)
		require.NoError(t, err)
		token, err := license.Codec{}.Encode(rec, ed25519.Sign(priv, payload))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, []byte(token), 0o600))
	}

	verifier := license.NewVerifier(pub, func() string { return "HW-123" })
	guard := license.NewGuard(verifier, path,
		license.WithGuardClock(func() time.Time { return now }),
		license.WithGuardLogger(testLogger()),
	)
	return NewReportHandler(guard, tenRows, testLogger())
}

func TestSummaryLicensed(t *testing.T) {
	h := reportFixture(t, true)

	rr := httptest.NewRecorder()
	h.Summary(rr, httptest.NewRequest(http.MethodGet, "/api/reports/summary", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body SummaryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Rows, 10)
	assert.Equal(t, int64(1045), body.TotalRequests)
}

// Without a license the summary degrades to a short sample and the
// response shape stays identical: a 200 with rows, not an error.
func TestSummaryUnlicensedDegrades(t *testing.T) {
	h := reportFixture(t, false)

	rr := httptest.NewRecorder()
	h.Summary(rr, httptest.NewRequest(http.MethodGet, "/api/reports/summary", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body SummaryResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Rows, sampleRowLimit)
	assert.Equal(t, int64(510), body.TotalRequests)
}

func TestExportLicensed(t *testing.T) {
	h := reportFixture(t, true)

	rr := httptest.NewRecorder()
	h.Export(rr, httptest.NewRequest(http.MethodGet, "/api/reports/export", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "attachment")

	f, err := excelize.OpenReader(rr.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Activity")
	require.NoError(t, err)
	assert.Len(t, rows, 11)
}

func TestExportUnlicensedDegrades(t *testing.T) {
	h := reportFixture(t, false)

	rr := httptest.NewRecorder()
	h.Export(rr, httptest.NewRequest(http.MethodGet, "/api/reports/export", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	f, err := excelize.OpenReader(rr.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Activity")
	require.NoError(t, err)
	assert.Len(t, rows, sampleRowLimit+1)
}

func TestActivityRecorder(t *testing.T) {
	recorder := NewActivityRecorder()
	fixed := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	recorder.now = func() time.Time { return fixed }

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	boom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	for i := 0; i < 3; i++ {
		recorder.Middleware(ok).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	}
	recorder.Middleware(boom).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	rows := recorder.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "2026-06-01", rows[0].Date)
	assert.Equal(t, int64(4), rows[0].Requests)
	assert.Equal(t, int64(1), rows[0].Errors)
}
