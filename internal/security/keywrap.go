package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// KeyWrapConfig defines the parameters for wrapping the signing key at
// rest. SCRYPT values follow the OWASP recommended minimums.
type KeyWrapConfig struct {
	SCryptN      int // CPU/memory cost parameter (32768 minimum)
	SCryptR      int // Block size parameter (8 recommended)
	SCryptP      int // Parallelization parameter (1 recommended)
	SCryptKeyLen int // Key length in bytes (32 for AES-256)
	NonceSize    int // 96-bit nonce size for GCM
}

// WrappedKey is the on-disk envelope for a passphrase-protected private
// key. The version field exists so the format can evolve without
// breaking previously written key files.
type WrappedKey struct {
	Version    uint8  `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

const keyWrapVersion = 1

// DefaultKeyWrapConfig returns the standard wrapping parameters.
func DefaultKeyWrapConfig() *KeyWrapConfig {
	return &KeyWrapConfig{
		SCryptN:      32768,
		SCryptR:      8,
		SCryptP:      1,
		SCryptKeyLen: 32,
		NonceSize:    12,
	}
}

// WrapKey encrypts private key material under a passphrase using
// scrypt-derived AES-256-GCM. The result marshals to a self-contained
// JSON envelope.
func WrapKey(plaintext []byte, passphrase string, config *KeyWrapConfig) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext cannot be empty")
	}
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}
	if config == nil {
		config = DefaultKeyWrapConfig()
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, config.SCryptN, config.SCryptR, config.SCryptP, config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, config.NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, config.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	envelope := WrappedKey{
		Version:    keyWrapVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}
	return json.MarshalIndent(envelope, "", "  ")
}

// UnwrapKey decrypts a WrapKey envelope. A wrong passphrase surfaces as
// a GCM authentication failure, indistinguishable from tampering.
func UnwrapKey(data []byte, passphrase string, config *KeyWrapConfig) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}
	if config == nil {
		config = DefaultKeyWrapConfig()
	}

	var envelope WrappedKey
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid key envelope: %w", err)
	}
	if envelope.Version != keyWrapVersion {
		return nil, fmt.Errorf("unsupported key envelope version %d", envelope.Version)
	}
	if len(envelope.Salt) == 0 || len(envelope.Nonce) == 0 || len(envelope.Ciphertext) == 0 {
		return nil, errors.New("key envelope is incomplete")
	}

	key, err := scrypt.Key([]byte(passphrase), envelope.Salt, config.SCryptN, config.SCryptR, config.SCryptP, config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(envelope.Nonce))
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, envelope.Nonce, envelope.Ciphertext, nil)
	if err != nil {
		return nil, errors.New("failed to decrypt key: wrong passphrase or corrupted file")
	}
	return plaintext, nil
}

// IsWrappedKey reports whether the data looks like a WrapKey envelope
// rather than a plain PEM file.
func IsWrappedKey(data []byte) bool {
	var envelope WrappedKey
	if err := json.Unmarshal(data, &envelope); err != nil {
		return false
	}
	return envelope.Version > 0 && len(envelope.Ciphertext) > 0
}
