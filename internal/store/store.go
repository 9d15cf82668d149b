package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// On-disk representations inside the data directory. At most one of the two
// is authoritative at a time; Save removes the other, Load checks the
// encrypted file first, Delete removes both.
const (
	encryptedFileName = "credential.bin"
	fallbackFileName  = "credential.json"
)

// fallbackRecord is the plaintext credential shape used when encryption is
// unavailable.
type fallbackRecord struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"createdAt"`
}

// CredentialStore persists the session token inside a per-user data
// directory. Operations are local filesystem side effects only; the
// directory is created on first use.
type CredentialStore struct {
	dir    string
	sealer *Sealer
}

// NewCredentialStore creates a store rooted at dir. Key material is loaded
// or created best-effort; when none can be obtained the store runs in the
// plaintext fallback mode, which is logged because it is a security-relevant
// condition, not a silent success.
func NewCredentialStore(dir string) *CredentialStore {
	s := &CredentialStore{dir: dir}

	key, err := loadMachineKey(dir)
	if err != nil {
		log.WithField("mode", "plaintext").Warnf("credential encryption unavailable: %v", err)
		return s
	}
	sealer, err := NewSealer(key)
	if err != nil {
		log.WithField("mode", "plaintext").Warnf("credential encryption unavailable: %v", err)
		return s
	}
	s.sealer = sealer
	return s
}

// EncryptionAvailable reports whether tokens are sealed before hitting disk.
func (s *CredentialStore) EncryptionAvailable() bool {
	return s.sealer != nil
}

// Save persists the session token, replacing any previous credential. The
// stale copy of the other representation is removed so a later Load cannot
// pick it up.
func (s *CredentialStore) Save(token string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("store: create data dir failed: %w", err)
	}

	if s.sealer != nil {
		sealed, err := s.sealer.Seal([]byte(token))
		if err != nil {
			return fmt.Errorf("store: seal credential failed: %w", err)
		}
		if err = writeFileAtomic(filepath.Join(s.dir, encryptedFileName), sealed); err != nil {
			return fmt.Errorf("store: write credential failed: %w", err)
		}
		removeIfExists(filepath.Join(s.dir, fallbackFileName))
		return nil
	}

	log.WithField("mode", "plaintext").Warn("storing credential without encryption")
	raw, err := json.Marshal(fallbackRecord{Token: token, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("store: marshal fallback record failed: %w", err)
	}
	if err = writeFileAtomic(filepath.Join(s.dir, fallbackFileName), raw); err != nil {
		return fmt.Errorf("store: write fallback credential failed: %w", err)
	}
	removeIfExists(filepath.Join(s.dir, encryptedFileName))
	return nil
}

// Load returns the stored session token. The encrypted representation is
// checked first; a blob that cannot be decrypted (key material changed,
// truncated file) reads as absent rather than an error, so a corrupted
// credential only ever forces a fresh login.
func (s *CredentialStore) Load() (string, bool) {
	if sealed, err := os.ReadFile(filepath.Join(s.dir, encryptedFileName)); err == nil {
		if s.sealer == nil {
			log.Warn("encrypted credential present but no key material; treating as absent")
			return "", false
		}
		token, errOpen := s.sealer.Open(sealed)
		if errOpen != nil {
			log.Warnf("stored credential could not be decrypted; treating as absent: %v", errOpen)
			return "", false
		}
		return string(token), true
	} else if !os.IsNotExist(err) {
		log.Warnf("failed to read stored credential; treating as absent: %v", err)
		return "", false
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, fallbackFileName))
	if err != nil {
		return "", false
	}
	var record fallbackRecord
	if err = json.Unmarshal(raw, &record); err != nil || record.Token == "" {
		log.Warnf("fallback credential could not be parsed; treating as absent: %v", err)
		return "", false
	}
	return record.Token, true
}

// HasCredential reports whether either on-disk representation exists. It is
// the gate other subsystems use before attaching a bearer token.
func (s *CredentialStore) HasCredential() bool {
	for _, name := range []string{encryptedFileName, fallbackFileName} {
		if _, err := os.Stat(filepath.Join(s.dir, name)); err == nil {
			return true
		}
	}
	return false
}

// Delete removes both possible on-disk representations. Absent files are not
// an error; calling Delete twice is safe.
func (s *CredentialStore) Delete() error {
	var firstErr error
	for _, name := range []string{encryptedFileName, fallbackFileName} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("store: remove %s failed: %w", name, err)
		}
	}
	return firstErr
}

// writeFileAtomic writes data via a temp file and rename, so an interrupted
// write can never leave a half-written credential that Load would parse.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// removeIfExists removes a file, ignoring its absence.
func removeIfExists(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to remove stale credential file %s: %v", path, err)
	}
}
