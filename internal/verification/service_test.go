package verification_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"consentry/internal/contact"
	"consentry/internal/crypto"
	"consentry/internal/token"
	"consentry/internal/verification"
	"consentry/internal/verification/mocks"
	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/requestcontext"
)

type fixture struct {
	svc    *verification.Service
	sender *mocks.MockSender
	tokens *token.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)

	cryptoSvc, err := crypto.New(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	contacts := contact.NewService(cryptoSvc, contact.NewInMemoryStore(), logger)

	store := verification.NewInMemoryStore()
	sender := mocks.NewMockSender(ctrl)
	tokens := token.NewService("test-signing-key", "consentry", "consentry")

	svc := verification.NewService(
		contacts,
		store,
		verification.NewInMemoryTx(store),
		sender,
		tokens,
		verification.WithLogger(logger),
	)
	return &fixture{svc: svc, sender: sender, tokens: tokens}
}

func TestIssue_DeliversSixDigitCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sender.EXPECT().
		Send(gomock.Any(), verification.ChannelSMS, "+15551234567", gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil)

	result, err := f.svc.Issue(ctx, "+15551234567", verification.PurposeOptIn, verification.ChannelSMS)
	require.NoError(t, err)
	assert.Len(t, result.Code, 6)
	assert.NotEmpty(t, result.ContactID)
	assert.WithinDuration(t, time.Now().Add(verification.CodeTTL), result.ExpiresAt, time.Minute)
}

func TestIssueThenVerify_MintsContactToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.Issue(ctx, "+15551234567", verification.PurposeOptIn, verification.ChannelSMS)
	require.NoError(t, err)

	signed, err := f.svc.Verify(ctx, "+15551234567", result.Code, verification.ChannelSMS)
	require.NoError(t, err)

	claims, err := f.tokens.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, string(token.ScopeContact), claims.Scope)
	assert.Equal(t, result.ContactID, claims.Subject)
}

func TestVerify_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.Issue(ctx, "user@example.com", verification.PurposeOptIn, verification.ChannelEmail)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, "user@example.com", result.Code, verification.ChannelEmail)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, "user@example.com", result.Code, verification.ChannelEmail)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Contains(t, err.Error(), "invalid or expired code")
}

func TestVerify_WrongCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := f.svc.Issue(ctx, "user@example.com", verification.PurposeOptIn, verification.ChannelEmail)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, "user@example.com", "000000", verification.ChannelEmail)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestVerify_WrongContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	result, err := f.svc.Issue(ctx, "alice@example.com", verification.PurposeOptIn, verification.ChannelEmail)
	require.NoError(t, err)

	// Correct code, wrong contact: same generic error as a wrong code.
	_, err = f.svc.Verify(ctx, "bob@example.com", result.Code, verification.ChannelEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or expired code")
}

func TestVerify_ExpiredCodeFailsEvenWhilePending(t *testing.T) {
	f := newFixture(t)

	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	issuedAt := time.Now()
	ctx := requestcontext.WithTime(context.Background(), issuedAt)
	result, err := f.svc.Issue(ctx, "user@example.com", verification.PurposeOptIn, verification.ChannelEmail)
	require.NoError(t, err)

	// Jump past the expiry window without any background sweep having run.
	afterExpiry := requestcontext.WithTime(context.Background(), issuedAt.Add(verification.CodeTTL+time.Second))
	_, err = f.svc.Verify(afterExpiry, "user@example.com", result.Code, verification.ChannelEmail)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or expired code")
}

func TestIssue_SupersedesPriorPendingCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	first, err := f.svc.Issue(ctx, "user@example.com", verification.PurposeOptIn, verification.ChannelEmail)
	require.NoError(t, err)
	second, err := f.svc.Issue(ctx, "user@example.com", verification.PurposeOptIn, verification.ChannelEmail)
	require.NoError(t, err)

	// The superseded code is dead even though it never expired by time.
	_, err = f.svc.Verify(ctx, "user@example.com", first.Code, verification.ChannelEmail)
	require.Error(t, err)

	_, err = f.svc.Verify(ctx, "user@example.com", second.Code, verification.ChannelEmail)
	require.NoError(t, err)
}

func TestIssue_DeliveryFailureKeepsPendingCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("provider 500"))

	_, err := f.svc.Issue(ctx, "user@example.com", verification.PurposeOptIn, verification.ChannelEmail)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestIssue_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		value   string
		purpose verification.Purpose
		channel verification.Channel
	}{
		{"bad purpose", "user@example.com", "unsubscribe", verification.ChannelEmail},
		{"bad channel", "user@example.com", verification.PurposeOptIn, "carrier-pigeon"},
		{"empty contact", "", verification.PurposeOptIn, verification.ChannelEmail},
		{"sms to email address", "user@example.com", verification.PurposeOptIn, verification.ChannelSMS},
		{"email to phone number", "+15551234567", verification.PurposeOptIn, verification.ChannelEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Issue(ctx, tt.value, tt.purpose, tt.channel)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) error {
	return dErrors.New(dErrors.CodeRateLimited, "too many verification codes requested")
}

func TestIssue_RateLimited(t *testing.T) {
	ctrl := gomock.NewController(t)
	cryptoSvc, err := crypto.New(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	contacts := contact.NewService(cryptoSvc, contact.NewInMemoryStore(), logger)
	store := verification.NewInMemoryStore()

	svc := verification.NewService(
		contacts,
		store,
		verification.NewInMemoryTx(store),
		mocks.NewMockSender(ctrl),
		token.NewService("test-signing-key", "consentry", "consentry"),
		verification.WithLogger(logger),
		verification.WithLimiter(denyLimiter{}),
	)

	_, err = svc.Issue(context.Background(), "user@example.com", verification.PurposeOptIn, verification.ChannelEmail)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRateLimited))
}
