package crypto

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// KeyStore creates and unlocks the main key.
type KeyStore interface {
	// Setup generates a new main key protected by passphrase. Called by `cv key init`.
	Setup(passphrase string) error
	// Unlock returns the main key. It fails if the passphrase is wrong.
	Unlock(passphrase string) ([]byte, error)
	IsConfigured() bool
}

// AgeKeyStore keeps a random main key in a file encrypted with age's
// scrypt-based passphrase encryption.
type AgeKeyStore struct {
	keyPath string
}

var _ KeyStore = (*AgeKeyStore)(nil)

func NewAgeKeyStore(keyPath string) *AgeKeyStore {
	return &AgeKeyStore{keyPath: keyPath}
}

// Setup refuses to overwrite an existing key: every stored object depends on it.
func (s *AgeKeyStore) Setup(passphrase string) error {
	if s.IsConfigured() {
		return fmt.Errorf("key already exists at %s", s.keyPath)
	}
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}

	mainKey := make([]byte, KeySize)
	if _, err := rand.Read(mainKey); err != nil {
		return fmt.Errorf("generating main key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	f, err := os.OpenFile(s.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating key file: %w", err)
	}
	defer f.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	w, err := age.Encrypt(f, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(mainKey); err != nil {
		return fmt.Errorf("writing encrypted key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted key: %w", err)
	}
	return nil
}

func (s *AgeKeyStore) Unlock(passphrase string) ([]byte, error) {
	data, err := os.ReadFile(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting key: %w", err)
	}
	mainKey, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted key: %w", err)
	}
	if len(mainKey) != KeySize {
		return nil, fmt.Errorf("key file holds %d bytes, want %d", len(mainKey), KeySize)
	}
	return mainKey, nil
}

func (s *AgeKeyStore) IsConfigured() bool {
	_, err := os.Stat(s.keyPath)
	return err == nil
}

// testKey is the fixed main key of TestKeyStore.
var testKey = bytes.Repeat([]byte{0x42}, KeySize)

// TestKeyStore always unlocks to the same fixed key. For tests only.
type TestKeyStore struct{}

var _ KeyStore = TestKeyStore{}

func (TestKeyStore) Setup(string) error            { return nil }
func (TestKeyStore) Unlock(string) ([]byte, error) { return bytes.Clone(testKey), nil }
func (TestKeyStore) IsConfigured() bool            { return true }
