// Package verification implements the one-time-code state machine that gates
// consent changes: issue a time-boxed code, deliver it, validate it, and mint
// a contact-scoped token on success.
package verification

import (
	"time"

	dErrors "consentry/pkg/domain-errors"
)

// Purpose labels why a code was requested.
type Purpose string

const (
	PurposeOptIn            Purpose = "opt_in"
	PurposeOptOut           Purpose = "opt_out"
	PurposePreferenceChange Purpose = "preference_change"
)

// Channel is how the code was delivered. Verification must match the delivery
// channel when one is supplied.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Status tracks the code lifecycle: pending → verified on a successful match,
// pending → expired either lazily at lookup time or when a newer code
// supersedes it.
type Status string

const (
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusExpired  Status = "expired"
)

// Code is a single-use, time-boxed proof of contact ownership.
type Code struct {
	ID        string
	ContactID string
	Code      string
	Channel   Channel
	// SentTo is the raw destination at time of sending, kept for audit and
	// display.
	SentTo     string
	Purpose    Purpose
	Status     Status
	ExpiresAt  time.Time
	VerifiedAt *time.Time
	CreatedAt  time.Time
}

// Expired reports whether the code is past its window, regardless of whether
// the status row was ever flipped.
func (c *Code) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CanVerify checks the state-machine invariant for the pending → verified
// transition.
func (c *Code) CanVerify(now time.Time) error {
	if c.Status != StatusPending {
		return dErrors.New(dErrors.CodeInvariantViolation, "code is not pending")
	}
	if c.Expired(now) {
		return dErrors.New(dErrors.CodeInvariantViolation, "code is expired")
	}
	return nil
}

// ApplyVerified transitions the code to verified. VerifiedAt is set exactly
// once.
func (c *Code) ApplyVerified(now time.Time) {
	c.Status = StatusVerified
	at := now
	c.VerifiedAt = &at
}

func validPurpose(p Purpose) bool {
	switch p {
	case PurposeOptIn, PurposeOptOut, PurposePreferenceChange:
		return true
	}
	return false
}

func validChannel(c Channel) bool {
	return c == ChannelSMS || c == ChannelEmail
}
