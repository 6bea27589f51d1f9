// Package vault stores third-party provider credentials encrypted at rest,
// under a key independent of the PII encryption key.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"consentry/pkg/platform/sentinel"
)

// Vault is an encrypted key/value store for provider API keys. The full secret
// set is loaded into memory at construction and the backing file is rewritten
// on every mutation. Mutations are rare, administrator-driven events; the
// internal lock makes a single process safe, but multi-replica deployments
// need external coordination or a transactional store.
type Vault struct {
	mu      sync.RWMutex
	path    string
	aead    cipher.AEAD
	secrets map[string]string
	logger  *slog.Logger
}

// New opens (or initializes) the vault at path with the given 32-byte key.
// A backing file that exists but fails to decrypt is a hard construction
// error: serving with a subset of "recovered" secrets is worse than failing
// startup.
func New(path string, key []byte, logger *slog.Logger) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init vault cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init vault gcm: %w", err)
	}

	v := &Vault{
		path:    path,
		aead:    aead,
		secrets: make(map[string]string),
		logger:  logger,
	}

	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return v, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vault file: %w", err)
	}
	if err := v.load(blob); err != nil {
		return nil, fmt.Errorf("vault file %s is undecryptable (wrong or rotated key?): %w", path, err)
	}
	return v, nil
}

func (v *Vault) load(blob []byte) error {
	if len(blob) < v.aead.NonceSize() {
		return sentinel.ErrInvalidState
	}
	nonce, sealed := blob[:v.aead.NonceSize()], blob[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return sentinel.ErrInvalidState
	}
	return json.Unmarshal(plaintext, &v.secrets)
}

// Get returns the secret value for key, or "" and false when absent.
func (v *Vault) Get(key string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	value, ok := v.secrets[key]
	return value, ok
}

// Set stores a secret and immediately re-encrypts and rewrites the backing
// file. There is no batching.
func (v *Vault) Set(key, value string) error {
	if key == "" {
		return fmt.Errorf("secret key must not be empty")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	previous, had := v.secrets[key]
	v.secrets[key] = value
	if err := v.persistLocked(); err != nil {
		if had {
			v.secrets[key] = previous
		} else {
			delete(v.secrets, key)
		}
		return err
	}
	return nil
}

// Delete removes a secret. Deleting an absent key is a no-op.
func (v *Vault) Delete(key string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	previous, had := v.secrets[key]
	if !had {
		return nil
	}
	delete(v.secrets, key)
	if err := v.persistLocked(); err != nil {
		v.secrets[key] = previous
		return err
	}
	return nil
}

// List returns the sorted secret names. Values are never listed.
func (v *Vault) List() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.secrets))
	for name := range v.secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *Vault) persistLocked() error {
	plaintext, err := json.Marshal(v.secrets)
	if err != nil {
		return fmt.Errorf("marshal vault: %w", err)
	}
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate vault nonce: %w", err)
	}
	blob := v.aead.Seal(nonce, nonce, plaintext, nil)

	tmp := v.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}
	if err := os.WriteFile(tmp, blob, 0o600); err != nil {
		return fmt.Errorf("write vault file: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		return fmt.Errorf("replace vault file: %w", err)
	}
	return nil
}
