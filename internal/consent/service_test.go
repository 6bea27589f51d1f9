package consent_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentry/internal/audit"
	"consentry/internal/consent"
	"consentry/internal/contact"
	"consentry/internal/crypto"
	"consentry/internal/program"
	"consentry/internal/token"
	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/requestcontext"
)

type fixture struct {
	svc      *consent.Service
	crypto   *crypto.Service
	contacts *contact.Service
	programs program.Store
	audit    *audit.InMemoryPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cryptoSvc, err := crypto.New(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	contacts := contact.NewService(cryptoSvc, contact.NewInMemoryStore(), logger)
	programs := program.NewInMemoryStore()
	publisher := audit.NewInMemoryPublisher()

	svc := consent.NewService(
		consent.NewInMemoryStore(),
		contacts,
		programs,
		cryptoSvc,
		logger,
		consent.WithAudit(publisher),
	)
	return &fixture{svc: svc, crypto: cryptoSvc, contacts: contacts, programs: programs, audit: publisher}
}

func (f *fixture) newContact(t *testing.T) *contact.Contact {
	t.Helper()
	c, err := f.contacts.CreateOrGet(context.Background(), "user@example.com")
	require.NoError(t, err)
	return c
}

func (f *fixture) newProgram(t *testing.T, status program.Status) *program.Program {
	t.Helper()
	now := time.Now()
	p := &program.Program{
		ID:        uuid.NewString(),
		Name:      "newsletter",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.programs.Create(context.Background(), p))
	return p
}

func adminCtx() context.Context {
	ctx := requestcontext.WithScope(context.Background(), string(token.ScopeAdmin))
	return requestcontext.WithSubject(ctx, "staff-1")
}

func contactCtx(contactID string) context.Context {
	ctx := requestcontext.WithScope(context.Background(), string(token.ScopeContact))
	return requestcontext.WithSubject(ctx, contactID)
}

func TestUpsert_OptInThenOptOut(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)
	p := f.newProgram(t, program.StatusOpen)
	ctx := contactCtx(c.ID)

	granted, err := f.svc.Upsert(ctx, consent.UpsertInput{
		ContactID: c.ID, ProgramID: p.ID, Channel: consent.ChannelEmail, OptedIn: true,
	})
	require.NoError(t, err)
	assert.Equal(t, consent.StatusOptIn, granted.Status)
	require.NotNil(t, granted.ConsentTimestamp)
	assert.Nil(t, granted.RevokedTimestamp)

	revoked, err := f.svc.Upsert(ctx, consent.UpsertInput{
		ContactID: c.ID, ProgramID: p.ID, Channel: consent.ChannelEmail, OptedIn: false,
	})
	require.NoError(t, err)
	assert.Equal(t, granted.ID, revoked.ID, "natural-key upsert updates in place")
	assert.Equal(t, consent.StatusOptOut, revoked.Status)
	require.NotNil(t, revoked.RevokedTimestamp)
	assert.Nil(t, revoked.ConsentTimestamp, "opt-out clears the grant timestamp")
}

func TestUpsert_SealsActorIntoRecord(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)
	p := f.newProgram(t, program.StatusOpen)

	row, err := f.svc.Upsert(adminCtx(), consent.UpsertInput{
		ContactID: c.ID, ProgramID: p.ID, Channel: consent.ChannelEmail, OptedIn: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, row.Record)

	plaintext, err := f.crypto.Decrypt(row.Record)
	require.NoError(t, err)
	var snapshot map[string]string
	require.NoError(t, json.Unmarshal([]byte(plaintext), &snapshot))
	assert.Equal(t, "admin", snapshot["actor_scope"])
	assert.Equal(t, "staff-1", snapshot["actor_subject"])
	assert.Equal(t, "opt_in", snapshot["status"])
}

func TestUpsert_ClosedProgramRejectsOptIn(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)
	p := f.newProgram(t, program.StatusClosed)

	_, err := f.svc.Upsert(adminCtx(), consent.UpsertInput{
		ContactID: c.ID, ProgramID: p.ID, Channel: consent.ChannelEmail, OptedIn: true,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	// Opting out of a closed program still works.
	_, err = f.svc.Upsert(adminCtx(), consent.UpsertInput{
		ContactID: c.ID, ProgramID: p.ID, Channel: consent.ChannelEmail, OptedIn: false,
	})
	require.NoError(t, err)
}

func TestUpsert_Authorization(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)
	p := f.newProgram(t, program.StatusOpen)
	in := consent.UpsertInput{ContactID: c.ID, ProgramID: p.ID, Channel: consent.ChannelEmail, OptedIn: true}

	t.Run("unauthenticated", func(t *testing.T) {
		_, err := f.svc.Upsert(context.Background(), in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("contact scope for another contact", func(t *testing.T) {
		_, err := f.svc.Upsert(contactCtx("someone-else"), in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("support scope cannot write", func(t *testing.T) {
		ctx := requestcontext.WithScope(context.Background(), string(token.ScopeSupport))
		_, err := f.svc.Upsert(ctx, in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	t.Run("matching contact scope", func(t *testing.T) {
		_, err := f.svc.Upsert(contactCtx(c.ID), in)
		assert.NoError(t, err)
	})
}

func TestUpsert_UnknownProgram(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)

	_, err := f.svc.Upsert(adminCtx(), consent.UpsertInput{
		ContactID: c.ID, ProgramID: uuid.NewString(), Channel: consent.ChannelEmail, OptedIn: true,
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestEffectiveStatus_DefaultsToOptIn(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)
	p := f.newProgram(t, program.StatusOpen)

	status, err := f.svc.EffectiveStatus(contactCtx(c.ID), c.ID, p.ID, consent.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, consent.StatusOptIn, status, "no row reads as opted in")
}

func TestEffectiveStatus_StoredRowWins(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)
	p := f.newProgram(t, program.StatusOpen)
	ctx := contactCtx(c.ID)

	_, err := f.svc.Upsert(ctx, consent.UpsertInput{
		ContactID: c.ID, ProgramID: p.ID, Channel: consent.ChannelEmail, OptedIn: false,
	})
	require.NoError(t, err)

	status, err := f.svc.EffectiveStatus(ctx, c.ID, p.ID, consent.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, consent.StatusOptOut, status)
}

func TestGlobalOptOut(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)
	joined := f.newProgram(t, program.StatusOpen)
	neverJoined := f.newProgram(t, program.StatusOpen)
	ctx := contactCtx(c.ID)

	_, err := f.svc.Upsert(ctx, consent.UpsertInput{
		ContactID: c.ID, ProgramID: joined.ID, Channel: consent.ChannelEmail, OptedIn: true,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.GlobalOptOut(ctx, c.ID))

	t.Run("existing row is revoked", func(t *testing.T) {
		row, err := f.svc.GetCurrent(ctx, c.ID, joined.ID, consent.ChannelEmail)
		require.NoError(t, err)
		require.NotNil(t, row)
		assert.Equal(t, consent.StatusOptOut, row.Status)
	})

	t.Run("no row is created for untouched programs", func(t *testing.T) {
		row, err := f.svc.GetCurrent(ctx, c.ID, neverJoined.ID, consent.ChannelEmail)
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("suppression overrides the default for untouched programs", func(t *testing.T) {
		status, err := f.svc.EffectiveStatus(ctx, c.ID, neverJoined.ID, consent.ChannelEmail)
		require.NoError(t, err)
		assert.Equal(t, consent.StatusOptOut, status)
	})

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, f.svc.GlobalOptOut(ctx, c.ID))
	})
}

func TestAuditEventsEmitted(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)
	p := f.newProgram(t, program.StatusOpen)
	ctx := contactCtx(c.ID)

	_, err := f.svc.Upsert(ctx, consent.UpsertInput{
		ContactID: c.ID, ProgramID: p.ID, Channel: consent.ChannelEmail, OptedIn: true,
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.GlobalOptOut(ctx, c.ID))

	events := f.audit.ListByContact(c.ID)
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionConsentChanged, events[0].Action)
	assert.Equal(t, "opt_in", events[0].Detail)
	assert.Equal(t, audit.ActionGlobalOptOut, events[1].Action)
	assert.Equal(t, "contact", events[1].ActorScope)
	assert.Equal(t, c.ID, events[1].ActorSubject)
}

func TestGetCurrent_AbsentRowIsNilNotError(t *testing.T) {
	f := newFixture(t)
	c := f.newContact(t)
	p := f.newProgram(t, program.StatusOpen)

	row, err := f.svc.GetCurrent(adminCtx(), c.ID, p.ID, consent.ChannelSMS)
	require.NoError(t, err)
	assert.Nil(t, row)
}
