// Package contact owns the persisted identity records for communication
// endpoints. A contact is keyed by the deterministic ID derived from its
// normalized value; the plaintext value is stored only as ciphertext.
package contact

import (
	"strings"
	"time"

	dErrors "consentry/pkg/domain-errors"
)

// Type is the kind of communication endpoint.
type Type string

const (
	TypeEmail Type = "email"
	TypePhone Type = "phone"
)

// Status is the lifecycle state. Contacts are soft-disabled, not deleted, in
// normal operation; an administrative hard-delete path exists on the store.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Contact is a person identified by an email address or phone number.
//
// ID always equals the deterministic derivation of the normalized raw value.
// It is never regenerated from plaintext stored elsewhere — only recomputed
// from input when needed.
type Contact struct {
	ID             string
	EncryptedValue string
	Type           Type
	Status         Status
	// OptOutAll suppresses the default-opted-in reading for every program,
	// including programs created after the flag was set.
	OptOutAll bool
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Normalize canonicalizes a raw contact value and classifies it. Emails are
// lowercased and trimmed; phone numbers keep a leading "+" and digits only.
func Normalize(raw string) (string, Type, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", dErrors.New(dErrors.CodeValidation, "contact value is required")
	}

	if strings.ContainsRune(raw, '@') {
		normalized := strings.ToLower(raw)
		at := strings.IndexByte(normalized, '@')
		if at == 0 || at == len(normalized)-1 || strings.Count(normalized, "@") != 1 {
			return "", "", dErrors.New(dErrors.CodeValidation, "invalid email address")
		}
		return normalized, TypeEmail, nil
	}

	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
			// separators are dropped
		default:
			return "", "", dErrors.New(dErrors.CodeValidation, "invalid phone number")
		}
	}
	normalized := b.String()
	digits := strings.TrimPrefix(normalized, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return "", "", dErrors.New(dErrors.CodeValidation, "invalid phone number")
	}
	return normalized, TypePhone, nil
}
