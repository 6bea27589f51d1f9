// Package audit captures consent-relevant actions as structured events.
// Events carry the contact's deterministic ID, never plaintext contact values.
package audit

import "time"

// Action labels what happened.
type Action string

const (
	ActionCodeIssued     Action = "verification.code_issued"
	ActionCodeVerified   Action = "verification.code_verified"
	ActionConsentChanged Action = "consent.changed"
	ActionGlobalOptOut   Action = "consent.global_opt_out"
)

// Event is emitted from domain logic. Keep it transport-agnostic so stores
// and sinks can fan out.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ContactID string    `json:"contact_id"`
	Action    Action    `json:"action"`
	ProgramID string    `json:"program_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	// ActorScope and ActorSubject identify who drove the change: an admin
	// token or the contact itself.
	ActorScope   string `json:"actor_scope,omitempty"`
	ActorSubject string `json:"actor_subject,omitempty"`
	Detail       string `json:"detail,omitempty"`
}
