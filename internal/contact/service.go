package contact

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"consentry/internal/crypto"
	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/platform/sentinel"
	"consentry/pkg/requestcontext"
)

// Service orchestrates contact identity: normalization, deterministic ID
// derivation, idempotent creation, and masked display.
type Service struct {
	crypto *crypto.Service
	store  Store
	logger *slog.Logger
	group  singleflight.Group
}

func NewService(cryptoSvc *crypto.Service, store Store, logger *slog.Logger) *Service {
	return &Service{crypto: cryptoSvc, store: store, logger: logger}
}

// CreateOrGet resolves a raw contact value to its Contact row, creating it on
// first sight. Idempotent under concurrent calls with the same value: in-
// process races collapse via singleflight, cross-process races hit the unique
// primary key and fall back to a re-select.
func (s *Service) CreateOrGet(ctx context.Context, rawValue string) (*Contact, error) {
	normalized, contactType, err := Normalize(rawValue)
	if err != nil {
		return nil, err
	}
	id := s.crypto.DeriveID(normalized)

	result, err, _ := s.group.Do(id, func() (any, error) {
		return s.createOrGet(ctx, id, normalized, contactType)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Contact), nil
}

func (s *Service) createOrGet(ctx context.Context, id, normalized string, contactType Type) (*Contact, error) {
	existing, err := s.store.FindByID(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up contact")
	}

	encrypted, err := s.crypto.Encrypt(normalized)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encrypt contact value")
	}
	now := requestcontext.Now(ctx)
	c := &Contact{
		ID:             id,
		EncryptedValue: encrypted,
		Type:           contactType,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, c); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Lost the race; the row the winner inserted is authoritative.
			winner, ferr := s.store.FindByID(ctx, id)
			if ferr != nil {
				return nil, dErrors.Wrap(ferr, dErrors.CodeInternal, "failed to re-select contact after collision")
			}
			return winner, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create contact")
	}
	return c, nil
}

// Get fetches a contact by its deterministic ID.
func (s *Service) Get(ctx context.Context, id string) (*Contact, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "contact id is required")
	}
	c, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "contact not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up contact")
	}
	return c, nil
}

// Display decrypts and masks a contact's value for listings. A decryption
// failure degrades to a placeholder rather than failing the caller's request;
// the failure is logged with enough detail for operators.
func (s *Service) Display(ctx context.Context, c *Contact) string {
	plaintext, err := s.crypto.Decrypt(c.EncryptedValue)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to decrypt contact value for display",
			"contact_id", c.ID,
			"error", err,
		)
		return crypto.MaskedPlaceholder
	}
	if c.Type == TypePhone {
		return crypto.MaskPhone(plaintext)
	}
	return crypto.MaskEmail(plaintext)
}

// SetStatus flips the soft lifecycle status, optionally recording a comment
// (e.g. an opt-out reason).
func (s *Service) SetStatus(ctx context.Context, id string, status Status, comment string) (*Contact, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Status = status
	if comment != "" {
		c.Comment = comment
	}
	c.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, c); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update contact")
	}
	return c, nil
}

// Suppress sets the global opt-out flag. Reads of any program's consent treat
// a suppressed contact as opted out, including programs created later.
func (s *Service) Suppress(ctx context.Context, id string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.OptOutAll {
		return nil
	}
	c.OptOutAll = true
	c.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Update(ctx, c); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to suppress contact")
	}
	return nil
}

// HardDelete is the administrative removal path.
func (s *Service) HardDelete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "contact not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete contact")
	}
	return nil
}

// DeriveID exposes the deterministic derivation for callers that need the ID
// of a raw value without materializing the contact.
func (s *Service) DeriveID(rawValue string) (string, error) {
	normalized, _, err := Normalize(rawValue)
	if err != nil {
		return "", err
	}
	return s.crypto.DeriveID(normalized), nil
}
