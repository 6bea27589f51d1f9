// Package consent owns the durable record of a contact's opt status per
// program and channel.
package consent

import (
	"time"

	dErrors "consentry/pkg/domain-errors"
)

// Status is the recorded opt state.
type Status string

const (
	StatusOptIn   Status = "opt_in"
	StatusOptOut  Status = "opt_out"
	StatusPending Status = "pending"
)

// Channel is the communication channel the consent applies to.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

func validChannel(c Channel) bool {
	return c == ChannelEmail || c == ChannelSMS
}

// Consent is the current record for one (contact, program, channel). Writes
// update in place rather than appending history; each row carries its own
// grant and revoke timestamps.
type Consent struct {
	ID        string
	ContactID string
	ProgramID string
	Channel   Channel
	Status    Status
	// ConsentTimestamp is set on opt-in, RevokedTimestamp on opt-out; the
	// transition clears the other.
	ConsentTimestamp *time.Time
	RevokedTimestamp *time.Time
	// VerificationID links the verification code that authorized the change,
	// empty for administrative writes.
	VerificationID string
	// Record is an encrypted audit blob snapshotting who changed what and when.
	Record    string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ApplyOptIn transitions the row to opted in.
func (c *Consent) ApplyOptIn(now time.Time) {
	c.Status = StatusOptIn
	c.ConsentTimestamp = &now
	c.RevokedTimestamp = nil
	c.UpdatedAt = now
}

// ApplyOptOut transitions the row to opted out.
func (c *Consent) ApplyOptOut(now time.Time) {
	c.Status = StatusOptOut
	c.RevokedTimestamp = &now
	c.ConsentTimestamp = nil
	c.UpdatedAt = now
}

func validateKey(contactID, programID string, channel Channel) error {
	if contactID == "" {
		return dErrors.New(dErrors.CodeValidation, "contact id is required")
	}
	if programID == "" {
		return dErrors.New(dErrors.CodeValidation, "program id is required")
	}
	if !validChannel(channel) {
		return dErrors.New(dErrors.CodeValidation, "invalid channel")
	}
	return nil
}
