//go:build integration

package consent_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"consentry/internal/consent"
	"consentry/internal/contact"
	"consentry/internal/program"
	"consentry/pkg/testutil/containers"
)

type PostgresConsentSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *consent.PostgresStore
	contacts *contact.PostgresStore
	programs *program.PostgresStore
	ctx      context.Context
}

func TestPostgresConsentSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresConsentSuite))
}

func (s *PostgresConsentSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = consent.NewPostgres(s.postgres.DB)
	s.contacts = contact.NewPostgres(s.postgres.DB)
	s.programs = program.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresConsentSuite) SetupTest() {
	s.postgres.Truncate(s.T())
}

func (s *PostgresConsentSuite) seed(contactID, programID string) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.contacts.Create(s.ctx, &contact.Contact{
		ID:             contactID,
		EncryptedValue: "ciphertext-" + contactID,
		Type:           contact.TypeEmail,
		Status:         contact.StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
	s.Require().NoError(s.programs.Create(s.ctx, &program.Program{
		ID:        programID,
		Name:      "newsletter",
		Status:    program.StatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func (s *PostgresConsentSuite) newRow(contactID, programID string, status consent.Status) *consent.Consent {
	now := time.Now().UTC().Truncate(time.Microsecond)
	row := &consent.Consent{
		ID:        uuid.NewString(),
		ContactID: contactID,
		ProgramID: programID,
		Channel:   consent.ChannelEmail,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	switch status {
	case consent.StatusOptIn:
		row.ConsentTimestamp = &now
	case consent.StatusOptOut:
		row.RevokedTimestamp = &now
	}
	return row
}

func (s *PostgresConsentSuite) TestUpsertInsertsThenUpdatesInPlace() {
	s.seed("contact-1", "prog-1")

	first := s.newRow("contact-1", "prog-1", consent.StatusOptIn)
	s.Require().NoError(s.store.Upsert(s.ctx, first))

	second := s.newRow("contact-1", "prog-1", consent.StatusOptOut)
	s.Require().NoError(s.store.Upsert(s.ctx, second))
	s.Equal(first.ID, second.ID, "conflict update keeps the original row id")

	found, err := s.store.FindCurrent(s.ctx, "contact-1", "prog-1", consent.ChannelEmail)
	s.Require().NoError(err)
	s.Equal(consent.StatusOptOut, found.Status)
	s.Nil(found.ConsentTimestamp)
	s.NotNil(found.RevokedTimestamp)
}

func (s *PostgresConsentSuite) TestRevokeAllForContact() {
	s.seed("contact-1", "prog-1")
	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.programs.Create(s.ctx, &program.Program{
		ID: "prog-2", Name: "alerts", Status: program.StatusOpen, CreatedAt: now, UpdatedAt: now,
	}))

	s.Require().NoError(s.store.Upsert(s.ctx, s.newRow("contact-1", "prog-1", consent.StatusOptIn)))
	s.Require().NoError(s.store.Upsert(s.ctx, s.newRow("contact-1", "prog-2", consent.StatusOptIn)))

	changed, err := s.store.RevokeAllForContact(s.ctx, "contact-1", now)
	s.Require().NoError(err)
	s.Equal(2, changed)

	rows, err := s.store.ListByContact(s.ctx, "contact-1")
	s.Require().NoError(err)
	s.Require().Len(rows, 2)
	for _, row := range rows {
		s.Equal(consent.StatusOptOut, row.Status)
		s.Nil(row.ConsentTimestamp)
		s.NotNil(row.RevokedTimestamp)
	}
}
