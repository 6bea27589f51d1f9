package contact

import "context"

// Store persists contacts. Implementations return sentinel errors for factual
// states: sentinel.ErrNotFound for unknown IDs, sentinel.ErrAlreadyUsed when a
// create collides on the deterministic primary key.
type Store interface {
	Create(ctx context.Context, c *Contact) error
	FindByID(ctx context.Context, id string) (*Contact, error)
	Update(ctx context.Context, c *Contact) error
	// Delete is the administrative hard-delete path. Normal lifecycle flips
	// Status instead.
	Delete(ctx context.Context, id string) error
}
