package program

import "context"

// Store persists programs. Implementations return sentinel.ErrNotFound for
// unknown IDs.
type Store interface {
	Create(ctx context.Context, p *Program) error
	FindByID(ctx context.Context, id string) (*Program, error)
	Update(ctx context.Context, p *Program) error
	List(ctx context.Context) ([]*Program, error)
}
