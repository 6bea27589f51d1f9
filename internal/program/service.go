package program

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/platform/sentinel"
	"consentry/pkg/requestcontext"
)

// Service exposes the administrative program registry.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Create registers a new open program.
func (s *Service) Create(ctx context.Context, name string) (*Program, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "program name is required")
	}
	now := requestcontext.Now(ctx)
	p := &Program{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create program")
	}
	s.logger.InfoContext(ctx, "program created", "program_id", p.ID, "name", p.Name)
	return p, nil
}

// Get fetches a program by ID.
func (s *Service) Get(ctx context.Context, id string) (*Program, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "program id is required")
	}
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "program not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up program")
	}
	return p, nil
}

// List returns all programs.
func (s *Service) List(ctx context.Context) ([]*Program, error) {
	programs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list programs")
	}
	return programs, nil
}

// Close stops the program from accepting new opt-ins. Existing consents are
// untouched.
func (s *Service) Close(ctx context.Context, id string) (*Program, error) {
	return s.transition(ctx, id, (*Program).ApplyClose)
}

// Reopen lets the program accept opt-ins again.
func (s *Service) Reopen(ctx context.Context, id string) (*Program, error) {
	return s.transition(ctx, id, (*Program).ApplyReopen)
}

func (s *Service) transition(ctx context.Context, id string, apply func(*Program, time.Time)) (*Program, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply(p, requestcontext.Now(ctx))
	if err := s.store.Update(ctx, p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update program")
	}
	return p, nil
}
