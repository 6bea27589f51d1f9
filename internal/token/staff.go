package token

import (
	"time"

	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/secrets"
)

// staffTokenTTL bounds how long an exchanged admin token lives.
const staffTokenTTL = time.Hour

// StaffAuth exchanges a shared operator secret for an admin-scoped token.
// The plaintext secret is never stored; only its bcrypt hash is configured.
type StaffAuth struct {
	tokens     *Service
	secretHash string
}

// NewStaffAuth builds the exchanger. An empty hash disables the exchange
// entirely, which is the safe default for deployments without operators.
func NewStaffAuth(tokens *Service, secretHash string) *StaffAuth {
	return &StaffAuth{tokens: tokens, secretHash: secretHash}
}

// Exchange verifies the operator secret and mints an admin token for subject.
func (a *StaffAuth) Exchange(subject, secret string) (string, error) {
	if a.secretHash == "" {
		return "", dErrors.New(dErrors.CodeUnavailable, "admin token exchange is not configured")
	}
	if subject == "" {
		return "", dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if err := secrets.Verify(secret, a.secretHash); err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
	}
	return a.tokens.Mint(subject, ScopeAdmin, staffTokenTTL)
}
