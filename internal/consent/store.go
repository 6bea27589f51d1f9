package consent

import (
	"context"
	"time"
)

// Store persists consent rows keyed by the natural key
// (contact_id, program_id, channel).
//
// Implementations return sentinel.ErrNotFound from FindCurrent when no row
// exists; callers interpret absence per the default-opt-in policy.
type Store interface {
	// Upsert inserts the row or updates the existing one with the same
	// natural key in place. On update the existing row's ID and CreatedAt
	// are preserved and written back onto c.
	Upsert(ctx context.Context, c *Consent) error
	FindCurrent(ctx context.Context, contactID, programID string, channel Channel) (*Consent, error)
	ListByContact(ctx context.Context, contactID string) ([]*Consent, error)
	// RevokeAllForContact flips every non-opted-out row for the contact to
	// opt-out, stamping revokedAt. Returns the number of rows changed.
	RevokeAllForContact(ctx context.Context, contactID string, revokedAt time.Time) (int, error)
}
