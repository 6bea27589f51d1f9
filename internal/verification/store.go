package verification

import (
	"context"
	"time"
)

// Store persists verification codes. Implementations return sentinel errors:
// sentinel.ErrNotFound when no matching code exists, sentinel.ErrInvalidState
// when a transition is attempted on a non-pending row.
type Store interface {
	// Create persists a new pending code and supersedes any prior pending
	// codes for the same (contact, purpose, channel) by flipping them to
	// expired. Both happen in the same store operation so the "one current
	// pending code" invariant is enforced, not assumed.
	Create(ctx context.Context, code *Code) error

	// FindCurrent returns the most recent pending code (by expiry, newest
	// first) matching the contact and submitted code value. An empty channel
	// matches any channel. Expiry is NOT checked here — the service checks it
	// so the lazy pending → expired flip stays in one place.
	FindCurrent(ctx context.Context, contactID, codeValue string, channel Channel) (*Code, error)

	// MarkVerified transitions a pending code to verified.
	MarkVerified(ctx context.Context, id string, at time.Time) error

	// MarkExpired flips a pending code to expired. Used for the opportunistic
	// expiry of stale codes discovered at lookup time.
	MarkExpired(ctx context.Context, id string) error
}

// Tx is the transactional boundary for verify-then-mint. The in-memory
// implementation holds a sharded lock; the postgres implementation wraps a
// database transaction. Token minting runs inside the boundary so a signing
// failure rolls the status flip back.
type Tx interface {
	RunInTx(ctx context.Context, contactID string, fn func(store Store) error) error
}
