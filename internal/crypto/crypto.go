// Package crypto protects contact PII at rest. It provides authenticated
// encryption of contact values, deterministic identifier derivation for
// lookups without decryption, and display masking.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/platform/sentinel"
)

// MaskedPlaceholder is what display paths show when a stored value cannot be
// decrypted. Listings degrade per row instead of failing the whole response.
const MaskedPlaceholder = "[Encrypted]"

const (
	rootKeySize   = 32
	cipherKeyInfo = "consentry/pii-cipher/v1"
	idSaltInfo    = "consentry/derived-id-salt/v1"
)

// Service encrypts and decrypts PII strings and derives stable identifiers
// from them. It is stateless after construction and safe for concurrent use.
//
// The cipher key and the ID-derivation salt are independent HKDF subkeys of
// one root secret, so compromising the ID scheme does not hand out the cipher
// key directly. Rotating the root secret still invalidates every derived ID
// and every stored ciphertext at once: rotation is a data migration, not a
// config change.
type Service struct {
	aead   cipher.AEAD
	idSalt []byte
}

// New builds a Service from the 32-byte root secret. A missing or short key is
// an error the caller must treat as startup-fatal; there is deliberately no
// generated-key fallback, since serving with a throwaway key silently orphans
// all previously encrypted data.
func New(rootKey []byte) (*Service, error) {
	if len(rootKey) < rootKeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput,
			fmt.Sprintf("pii root key must be at least %d bytes", rootKeySize))
	}

	cipherKey := make([]byte, rootKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, rootKey, nil, []byte(cipherKeyInfo)), cipherKey); err != nil {
		return nil, fmt.Errorf("derive cipher key: %w", err)
	}
	idSalt := make([]byte, rootKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, rootKey, nil, []byte(idSaltInfo)), idSalt); err != nil {
		return nil, fmt.Errorf("derive id salt: %w", err)
	}

	block, err := aes.NewCipher(cipherKey)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	return &Service{aead: aead, idSalt: idSalt}, nil
}

// Encrypt seals a plaintext contact value with AES-256-GCM and returns
// base64(nonce || ciphertext). Empty input is rejected rather than encrypted
// to an empty-but-valid blob.
func (s *Service) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "plaintext must not be empty")
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed input, a truncated blob, or a failed
// authentication tag check (tampering or wrong key) all surface as
// sentinel.ErrInvalidState wrapped with context; corrupted plaintext is never
// returned silently.
func (s *Service) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", fmt.Errorf("empty ciphertext: %w", sentinel.ErrInvalidState)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("malformed ciphertext: %w", sentinel.ErrInvalidState)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("truncated ciphertext: %w", sentinel.ErrInvalidState)
	}
	nonce, sealed := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("authentication failed: %w", sentinel.ErrInvalidState)
	}
	return string(plaintext), nil
}

// DeriveID returns hex(SHA256(plaintext || salt)): a stable, non-reversible
// identifier usable as a primary key and lookup handle without storing or
// querying plaintext. Same input, same key, same output — always.
func (s *Service) DeriveID(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	h := sha256.New()
	h.Write([]byte(plaintext))
	h.Write(s.idSalt)
	return hex.EncodeToString(h.Sum(nil))
}
