// Package store persists the HighFlow session credential on disk, encrypted
// at rest when key material is available and falling back to a clearly
// degraded plaintext record when it is not.
package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// credentialKeyEnv overrides the on-disk machine key with a 32-byte
// hex-encoded key, mainly for managed installs.
const credentialKeyEnv = "HIGHFLOW_CREDENTIAL_KEY"

// machineKeyFile holds the generated per-user key inside the data directory.
const machineKeyFile = "credential.key"

// Sealer seals and opens the credential blob using AES-256-GCM.
// Payload layout: nonce || ciphertext+tag.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("sealer key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts one plaintext value.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	// GCM requires a unique nonce per encryption under the same key.
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a previously sealed payload.
func (s *Sealer) Open(payload []byte) ([]byte, error) {
	nonceSize := s.aead.NonceSize()
	if len(payload) < nonceSize {
		return nil, fmt.Errorf("sealed payload too short")
	}
	plaintext, err := s.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed payload: %w", err)
	}
	return plaintext, nil
}

// loadMachineKey obtains the 32-byte credential key. Order: the environment
// override, then the per-user key file, which is created on first use. Any
// failure means encryption-at-rest is unavailable for this install.
func loadMachineKey(dir string) ([]byte, error) {
	if env := strings.TrimSpace(os.Getenv(credentialKeyEnv)); env != "" {
		key, err := hex.DecodeString(env)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("%s must be 64 hex characters", credentialKeyEnv)
		}
		return key, nil
	}

	path := filepath.Join(dir, machineKeyFile)
	if data, err := os.ReadFile(path); err == nil {
		key, errDecode := hex.DecodeString(strings.TrimSpace(string(data)))
		if errDecode != nil || len(key) != 32 {
			return nil, fmt.Errorf("machine key file %s is corrupt", path)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read machine key: %w", err)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate machine key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("write machine key: %w", err)
	}
	return key, nil
}
