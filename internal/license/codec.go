package license

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenVersion is the wire version prefix of every license token this
// release can produce. Decoders accept exactly this version; unknown
// trailing segments after the signature are ignored so future releases
// can append fields without breaking deployed verifiers.
const TokenVersion = "NLK1"

var tokenEncoding = base64.RawURLEncoding

// Codec serializes license records to and from the single-line signed
// token format:
//
//	NLK1.<base64url(JSON payload)>.<base64url(ed25519 signature)>
//
// The signature is computed over the exact payload bytes between the
// first and second separator, so any single-byte change to the payload
// region invalidates it.
type Codec struct{}

// Encode produces a token from a record and its detached signature.
func (Codec) Encode(rec Record, sig []byte) (string, error) {
	payload, err := CanonicalPayload(rec)
	if err != nil {
		return "", err
	}
	return TokenVersion + "." + tokenEncoding.EncodeToString(payload) + "." + tokenEncoding.EncodeToString(sig), nil
}

// Decode parses a token into its record, the raw signed payload bytes
// and the detached signature. Structural problems return
// ErrTokenMalformed; Decode performs no signature verification.
func (Codec) Decode(token string) (Record, []byte, []byte, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Record{}, nil, nil, fmt.Errorf("%w: empty token", ErrTokenMalformed)
	}

	parts := strings.Split(token, ".")
	if len(parts) < 3 {
		return Record{}, nil, nil, fmt.Errorf("%w: expected version, payload and signature segments", ErrTokenMalformed)
	}
	if parts[0] != TokenVersion {
		return Record{}, nil, nil, fmt.Errorf("%w: unsupported token version %q", ErrTokenMalformed, parts[0])
	}

	payload, err := tokenEncoding.DecodeString(parts[1])
	if err != nil {
		return Record{}, nil, nil, fmt.Errorf("%w: payload is not valid base64", ErrTokenMalformed)
	}
	sig, err := tokenEncoding.DecodeString(parts[2])
	if err != nil {
		return Record{}, nil, nil, fmt.Errorf("%w: signature is not valid base64", ErrTokenMalformed)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, nil, nil, fmt.Errorf("%w: payload is not a license record", ErrTokenMalformed)
	}
	if rec.CustomerName == "" || rec.HardwareID == "" || rec.IssuedAt.IsZero() || rec.ExpiresAt.IsZero() {
		return Record{}, nil, nil, fmt.Errorf("%w: payload is missing required fields", ErrTokenMalformed)
	}

	// Segments beyond the signature are reserved for future use.
	return rec, payload, sig, nil
}

// CanonicalPayload returns the byte sequence that gets signed. Struct
// field order fixes the JSON key order, and timestamps are normalized
// to UTC so issuer and verifier agree byte for byte.
func CanonicalPayload(rec Record) ([]byte, error) {
	rec.IssuedAt = rec.IssuedAt.UTC().Truncate(time.Second)
	rec.ExpiresAt = rec.ExpiresAt.UTC().Truncate(time.Second)
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal license record: %w", err)
	}
	return payload, nil
}
