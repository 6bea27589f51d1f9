package consent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"consentry/internal/audit"
	"consentry/internal/contact"
	"consentry/internal/crypto"
	"consentry/internal/platform/metrics"
	"consentry/internal/program"
	"consentry/internal/token"
	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/platform/sentinel"
	"consentry/pkg/requestcontext"
)

// Service enforces consent policy: default-opt-in on absent rows, global
// suppression, the closed-program guard, and caller scope checks.
type Service struct {
	store    Store
	contacts *contact.Service
	programs program.Store
	crypto   *crypto.Service
	audit    audit.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Service)

func WithAudit(p audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, contacts *contact.Service, programs program.Store, cryptoSvc *crypto.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		contacts: contacts,
		programs: programs,
		crypto:   cryptoSvc,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertInput carries the write request. VerificationID and Notes are
// optional.
type UpsertInput struct {
	ContactID      string
	ProgramID      string
	Channel        Channel
	OptedIn        bool
	VerificationID string
	Notes          string
}

// GetCurrent returns the stored row for the natural key, or nil when none
// exists. Absence is not an error; callers needing policy interpretation use
// EffectiveStatus.
func (s *Service) GetCurrent(ctx context.Context, contactID, programID string, channel Channel) (*Consent, error) {
	if err := validateKey(contactID, programID, channel); err != nil {
		return nil, err
	}
	if err := s.authorizeRead(ctx, contactID); err != nil {
		return nil, err
	}
	c, err := s.store.FindCurrent(ctx, contactID, programID, channel)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up consent")
	}
	return c, nil
}

// EffectiveStatus resolves what the contact's opt state actually is:
// suppression wins over everything, a stored row wins over the default, and
// no row reads as opted in.
func (s *Service) EffectiveStatus(ctx context.Context, contactID, programID string, channel Channel) (Status, error) {
	if err := validateKey(contactID, programID, channel); err != nil {
		return "", err
	}
	if err := s.authorizeRead(ctx, contactID); err != nil {
		return "", err
	}
	c, err := s.contacts.Get(ctx, contactID)
	if err != nil {
		return "", err
	}
	if c.OptOutAll {
		return StatusOptOut, nil
	}
	row, err := s.store.FindCurrent(ctx, contactID, programID, channel)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return StatusOptIn, nil
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up consent")
	}
	return row.Status, nil
}

// ListByContact returns every stored row for the contact.
func (s *Service) ListByContact(ctx context.Context, contactID string) ([]*Consent, error) {
	if contactID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "contact id is required")
	}
	if err := s.authorizeRead(ctx, contactID); err != nil {
		return nil, err
	}
	rows, err := s.store.ListByContact(ctx, contactID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return rows, nil
}

// Upsert records an opt-in or opt-out. Requires an admin token or a contact
// token whose subject matches contactID. Opting in to a closed program is
// rejected regardless of scope.
func (s *Service) Upsert(ctx context.Context, in UpsertInput) (*Consent, error) {
	if err := validateKey(in.ContactID, in.ProgramID, in.Channel); err != nil {
		return nil, err
	}
	if err := s.authorizeWrite(ctx, in.ContactID); err != nil {
		return nil, err
	}
	if _, err := s.contacts.Get(ctx, in.ContactID); err != nil {
		return nil, err
	}

	prog, err := s.programs.FindByID(ctx, in.ProgramID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "program not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up program")
	}
	if in.OptedIn {
		if err := prog.CanAcceptOptIn(); err != nil {
			return nil, err
		}
	}

	now := requestcontext.Now(ctx)
	row := &Consent{
		ID:             uuid.NewString(),
		ContactID:      in.ContactID,
		ProgramID:      in.ProgramID,
		Channel:        in.Channel,
		VerificationID: in.VerificationID,
		Notes:          in.Notes,
		CreatedAt:      now,
	}
	if in.OptedIn {
		row.ApplyOptIn(now)
	} else {
		row.ApplyOptOut(now)
	}
	record, err := s.sealRecord(ctx, row, now)
	if err != nil {
		return nil, err
	}
	row.Record = record

	if err := s.store.Upsert(ctx, row); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to upsert consent")
	}

	s.metrics.IncConsentChanges(string(row.Status))
	s.emit(ctx, audit.Event{
		ContactID: in.ContactID,
		Action:    audit.ActionConsentChanged,
		ProgramID: in.ProgramID,
		Channel:   string(in.Channel),
		Detail:    string(row.Status),
	})
	return row, nil
}

// GlobalOptOut suppresses the contact and revokes every stored row. Programs
// the contact never had a row for stay absent: the suppression flag is what
// makes them read as opted out from now on.
func (s *Service) GlobalOptOut(ctx context.Context, contactID string) error {
	if contactID == "" {
		return dErrors.New(dErrors.CodeValidation, "contact id is required")
	}
	if err := s.authorizeWrite(ctx, contactID); err != nil {
		return err
	}
	if err := s.contacts.Suppress(ctx, contactID); err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	changed, err := s.store.RevokeAllForContact(ctx, contactID, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consents")
	}
	s.logger.InfoContext(ctx, "global opt-out applied",
		"contact_id", contactID,
		"rows_revoked", changed,
	)

	s.metrics.IncConsentChanges(string(StatusOptOut))
	s.emit(ctx, audit.Event{
		ContactID: contactID,
		Action:    audit.ActionGlobalOptOut,
	})
	return nil
}

func (s *Service) authorizeWrite(ctx context.Context, contactID string) error {
	switch token.Scope(requestcontext.Scope(ctx)) {
	case token.ScopeAdmin:
		return nil
	case token.ScopeContact:
		if requestcontext.Subject(ctx) != contactID {
			return dErrors.New(dErrors.CodeForbidden, "token subject does not match contact")
		}
		return nil
	case "":
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	default:
		return dErrors.New(dErrors.CodeForbidden, "scope cannot modify consent")
	}
}

func (s *Service) authorizeRead(ctx context.Context, contactID string) error {
	switch token.Scope(requestcontext.Scope(ctx)) {
	case token.ScopeAdmin, token.ScopeSupport:
		return nil
	case token.ScopeContact:
		if requestcontext.Subject(ctx) != contactID {
			return dErrors.New(dErrors.CodeForbidden, "token subject does not match contact")
		}
		return nil
	case "":
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	default:
		return dErrors.New(dErrors.CodeForbidden, "scope cannot read consent")
	}
}

// sealRecord snapshots the change and the actor into the row's encrypted
// audit blob.
func (s *Service) sealRecord(ctx context.Context, row *Consent, now time.Time) (string, error) {
	snapshot := map[string]string{
		"status":        string(row.Status),
		"program_id":    row.ProgramID,
		"channel":       string(row.Channel),
		"actor_scope":   requestcontext.Scope(ctx),
		"actor_subject": requestcontext.Subject(ctx),
		"at":            now.UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode consent record")
	}
	sealed, err := s.crypto.Encrypt(string(payload))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal consent record")
	}
	return sealed, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	event.ActorScope = requestcontext.Scope(ctx)
	event.ActorSubject = requestcontext.Subject(ctx)
	if err := s.audit.Emit(ctx, event); err != nil {
		// Audit is best-effort on the write path; the consent change already
		// committed.
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"contact_id", event.ContactID,
			"error", err,
		)
	}
}
