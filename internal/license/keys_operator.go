// Operator-side key material handling. This file is reached only from
// the issuance tool; nothing under cmd/nodelock-app or internal/app may
// import these symbols, keeping the private key out of the customer
// binary's code paths.

package license

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"nodelock/internal/security"
)

const privateKeyPEMType = "PRIVATE KEY"

// GenerateKeyPair creates a fresh ed25519 signing pair and writes both
// artifacts: the private key (PEM, optionally passphrase-wrapped) and
// the public key in the embeddable base64 form.
func GenerateKeyPair(privatePath, publicPath, passphrase string) (ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	if err := SavePrivateKey(privatePath, priv, passphrase); err != nil {
		return nil, err
	}
	if err := atomicWriteFile(publicPath, []byte(EncodePublicKey(pub)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}
	return pub, nil
}

// SavePrivateKey writes the private key as PKCS#8 PEM. With a
// passphrase the PEM bytes are wrapped in the scrypt/AES-GCM envelope
// before hitting disk.
func SavePrivateKey(path string, priv ed25519.PrivateKey, passphrase string) error {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: der})

	if passphrase != "" {
		data, err = security.WrapKey(data, passphrase, nil)
		if err != nil {
			return fmt.Errorf("failed to wrap private key: %w", err)
		}
	}
	if err := atomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	return nil
}

// LoadPrivateKey reads the operator's signing key. Wrapped files need
// the passphrase; plain PEM files ignore it.
func LoadPrivateKey(path, passphrase string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKeyUnusable, err)
	}

	if security.IsWrappedKey(data) {
		data, err = security.UnwrapKey(data, passphrase, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPrivateKeyUnusable, err)
		}
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("%w: not a PEM private key", ErrPrivateKeyUnusable)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKeyUnusable, err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ed25519 key", ErrPrivateKeyUnusable)
	}
	return priv, nil
}

// atomicWriteFile writes via a temp file in the target directory and
// renames it into place, so a crash never leaves a half-written artifact.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
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

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
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
