package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadEncrypted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewCredentialStore(dir)
	if !s.EncryptionAvailable() {
		t.Fatal("encryption should be available with a writable data dir")
	}

	if err := s.Save("tok-2"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	token, ok := s.Load()
	if !ok || token != "tok-2" {
		t.Errorf("Load = (%q, %v), want (tok-2, true)", token, ok)
	}

	// The encrypted representation is authoritative; no plaintext fallback
	// file may exist, and the blob on disk must not contain the token.
	if _, err := os.Stat(filepath.Join(dir, fallbackFileName)); !os.IsNotExist(err) {
		t.Error("plaintext fallback file present after encrypted save")
	}
	raw, err := os.ReadFile(filepath.Join(dir, encryptedFileName))
	if err != nil {
		t.Fatalf("encrypted file missing: %v", err)
	}
	if string(raw) == "tok-2" {
		t.Error("token stored in the clear")
	}
}

func TestSaveFallbackWhenEncryptionUnavailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := &CredentialStore{dir: dir} // no sealer: degraded mode
	if s.EncryptionAvailable() {
		t.Fatal("test store should report encryption unavailable")
	}

	if err := s.Save("tok-3"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	token, ok := s.Load()
	if !ok || token != "tok-3" {
		t.Errorf("Load = (%q, %v), want (tok-3, true)", token, ok)
	}
	if _, err := os.Stat(filepath.Join(dir, fallbackFileName)); err != nil {
		t.Errorf("fallback file missing: %v", err)
	}
}

func TestSaveSwitchingModesRemovesStaleCopy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	degraded := &CredentialStore{dir: dir}
	if err := degraded.Save("tok-old"); err != nil {
		t.Fatal(err)
	}

	s := NewCredentialStore(dir)
	if err := s.Save("tok-new"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, fallbackFileName)); !os.IsNotExist(err) {
		t.Error("stale fallback file still reachable after encrypted save")
	}
	token, ok := s.Load()
	if !ok || token != "tok-new" {
		t.Errorf("Load = (%q, %v), want (tok-new, true)", token, ok)
	}
}

func TestLoadCorruptBlobReadsAsAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewCredentialStore(dir)
	if err := s.Save("tok-4"); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, encryptedFileName), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	if token, ok := s.Load(); ok {
		t.Errorf("Load returned (%q, true) for a corrupt blob, want absent", token)
	}
}

func TestLoadAfterKeyChangeReadsAsAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewCredentialStore(dir)
	if err := s.Save("tok-5"); err != nil {
		t.Fatal(err)
	}

	// Platform key material changed: the blob no longer decrypts.
	if err := os.Remove(filepath.Join(dir, machineKeyFile)); err != nil {
		t.Fatal(err)
	}
	rekeyed := NewCredentialStore(dir)
	if token, ok := rekeyed.Load(); ok {
		t.Errorf("Load returned (%q, true) after key change, want absent", token)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := NewCredentialStore(dir)
	if err := s.Save("tok-6"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	for _, name := range []string{encryptedFileName, fallbackFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s still present after Delete", name)
		}
	}
	if _, ok := s.Load(); ok {
		t.Error("Load found a credential after Delete")
	}

	if err := s.Delete(); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestHasCredential(t *testing.T) {
	t.Parallel()

	s := NewCredentialStore(t.TempDir())
	if s.HasCredential() {
		t.Error("HasCredential true on empty store")
	}
	if err := s.Save("tok-7"); err != nil {
		t.Fatal(err)
	}
	if !s.HasCredential() {
		t.Error("HasCredential false after Save")
	}
	if err := s.Delete(); err != nil {
		t.Fatal(err)
	}
	if s.HasCredential() {
		t.Error("HasCredential true after Delete")
	}
}

func TestEnvironmentKeyOverride(t *testing.T) {
	t.Setenv(credentialKeyEnv, "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")

	dir := t.TempDir()
	s := NewCredentialStore(dir)
	if !s.EncryptionAvailable() {
		t.Fatal("encryption should be available with an environment key")
	}
	if err := s.Save("tok-8"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, machineKeyFile)); !os.IsNotExist(err) {
		t.Error("machine key file created despite environment override")
	}
	if token, ok := s.Load(); !ok || token != "tok-8" {
		t.Errorf("Load = (%q, %v), want (tok-8, true)", token, ok)
	}
}
