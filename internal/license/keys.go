package license

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
)

// embeddedPublicKey is the release signing public key shipped inside the
// customer-facing binary. The matching private key exists only on the
// operator machine; see keys_operator.go. Rotating this value requires a
// new release, which is intentional: the key artifact must be byte-stable
// across releases.
const embeddedPublicKey = "IvI3WLaNi1jw5TOzbvKs+LUlcd5sxE2sFQGVMtRTqRI="

// EmbeddedPublicKey decodes the compiled-in verification key.
func EmbeddedPublicKey() (ed25519.PublicKey, error) {
	return ParsePublicKey(embeddedPublicKey)
}

// ParsePublicKey decodes a base64-encoded raw ed25519 public key.
func ParsePublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("public key is not valid base64: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key has wrong length %d, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// EncodePublicKey renders a public key in the embeddable base64 form.
func EncodePublicKey(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}
