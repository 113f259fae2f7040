package license

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord() Record {
	return Record{
		CustomerName: "Acme Corp",
		HardwareID:   "HW-123",
		IssuedAt:     time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC),
		ExpiresAt:    time.Date(2027, 1, 15, 10, 30, 0, 0, time.UTC),
		Features:     []string{"reports", "export"},
	}
}

func signedToken(t *testing.T, rec Record, priv ed25519.PrivateKey) string {
	t.Helper()
	payload, err := CanonicalPayload(rec)
	require.NoError(t, err)
	token, err := Codec{}.Encode(rec, ed25519.Sign(priv, payload))
	require.NoError(t, err)
	return token
}

func TestCodecRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	rec := testRecord()
	token := signedToken(t, rec, priv)

	decoded, payload, sig, err := Codec{}.Decode(token)
	require.NoError(t, err)

	assert.Equal(t, rec.CustomerName, decoded.CustomerName)
	assert.Equal(t, rec.HardwareID, decoded.HardwareID)
	assert.True(t, rec.IssuedAt.Equal(decoded.IssuedAt))
	assert.True(t, rec.ExpiresAt.Equal(decoded.ExpiresAt))
	assert.Equal(t, rec.Features, decoded.Features)
	assert.True(t, ed25519.Verify(pub, payload, sig))
}

func TestCodecDecodeMalformed(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	valid := signedToken(t, testRecord(), priv)
	parts := strings.Split(valid, ".")

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"whitespace only", "   \n"},
		{"no separators", "NLK1"},
		{"missing signature segment", parts[0] + "." + parts[1]},
		{"wrong version", "NLK9." + parts[1] + "." + parts[2]},
		{"payload not base64", parts[0] + ".!!!." + parts[2]},
		{"signature not base64", parts[0] + "." + parts[1] + ".!!!"},
		{"payload not json", parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte("hello")) + "." + parts[2]},
		{"payload missing fields", parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(`{"customer_name":"x"}`)) + "." + parts[2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := Codec{}.Decode(tt.token)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTokenMalformed)
		})
	}
}

func TestCodecDecodeIgnoresTrailingSegments(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	token := signedToken(t, testRecord(), priv)

	extended := token + "." + base64.RawURLEncoding.EncodeToString([]byte("future-extension"))
	decoded, _, _, err := Codec{}.Decode(extended)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", decoded.CustomerName)
}

func TestCodecDecodeIgnoresUnknownPayloadFields(t *testing.T) {
	payload, err := json.Marshal(map[string]interface{}{
		"customer_name": "Acme Corp",
		"hardware_id":   "HW-123",
		"issued_at":     "2026-01-15T10:30:00Z",
		"expires_at":    "2027-01-15T10:30:00Z",
		"grace_days":    14,
	})
	require.NoError(t, err)

	token := TokenVersion + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." +
		base64.RawURLEncoding.EncodeToString(make([]byte, ed25519.SignatureSize))

	decoded, _, _, err := Codec{}.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "HW-123", decoded.HardwareID)
}

func TestCanonicalPayloadNormalizesTimes(t *testing.T) {
	baghdad := time.FixedZone("AST", 3*3600)
	rec := testRecord()
	utcPayload, err := CanonicalPayload(rec)
	require.NoError(t, err)

	rec.IssuedAt = rec.IssuedAt.In(baghdad)
	rec.ExpiresAt = rec.ExpiresAt.In(baghdad).Add(500 * time.Millisecond)
	zonedPayload, err := CanonicalPayload(rec)
	require.NoError(t, err)

	assert.Equal(t, utcPayload, zonedPayload)
}
