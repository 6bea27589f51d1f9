package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"consentry/internal/audit"
	"consentry/internal/contact"
	"consentry/internal/platform/metrics"
	"consentry/internal/token"
	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/platform/sentinel"
	"consentry/pkg/requestcontext"
)

const (
	codeLength = 6
	// CodeTTL is the validity window for issued codes.
	CodeTTL = 15 * time.Minute
	// senderTimeout bounds the blocking delivery call so a hanging provider
	// cannot pin the issuing request indefinitely.
	senderTimeout = 10 * time.Second
	// contactTokenTTL is the lifetime of the contact-scoped token minted on
	// successful verification.
	contactTokenTTL = 30 * time.Minute
)

// errInvalidCode is deliberately the same for "wrong code", "expired code"
// and "already used code" so callers cannot enumerate which one occurred.
func errInvalidCode() error {
	return dErrors.New(dErrors.CodeValidation, "invalid or expired code")
}

// IssueResult is returned from Issue. The code value goes back to the caller
// for tests and non-HTTP integrations; the HTTP layer must not echo it.
type IssueResult struct {
	CodeID    string
	Code      string
	ContactID string
	ExpiresAt time.Time
}

// Service drives the verification-code state machine.
type Service struct {
	contacts *contact.Service
	store    Store
	tx       Tx
	sender   Sender
	tokens   *token.Service
	limiter  IssueLimiter
	metrics  *metrics.Metrics
	audit    audit.Publisher
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewService(
	contacts *contact.Service,
	store Store,
	tx Tx,
	sender Sender,
	tokens *token.Service,
	opts ...Option,
) *Service {
	cfg := &serviceConfig{
		limiter: NoopLimiter{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Service{
		contacts: contacts,
		store:    store,
		tx:       tx,
		sender:   sender,
		tokens:   tokens,
		limiter:  cfg.limiter,
		metrics:  cfg.metrics,
		audit:    cfg.audit,
		logger:   cfg.logger,
		tracer:   otel.Tracer("consentry/internal/verification"),
	}
}

type serviceConfig struct {
	limiter IssueLimiter
	metrics *metrics.Metrics
	audit   audit.Publisher
	logger  *slog.Logger
}

type Option func(*serviceConfig)

func WithLimiter(l IssueLimiter) Option {
	return func(c *serviceConfig) { c.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = l }
}

func WithAudit(p audit.Publisher) Option {
	return func(c *serviceConfig) { c.audit = p }
}

// Issue creates a pending code for the contact behind rawValue and hands it to
// the Sender. The contact row is created on first sight. If delivery fails the
// pending code is NOT rolled back: a retried issuance supersedes it, and
// verification always selects the most recent pending code anyway.
func (s *Service) Issue(ctx context.Context, rawValue string, purpose Purpose, channel Channel) (*IssueResult, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Issue",
		trace.WithAttributes(
			attribute.String("purpose", string(purpose)),
			attribute.String("channel", string(channel)),
		))
	defer span.End()

	if !validPurpose(purpose) {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid purpose")
	}
	if !validChannel(channel) {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid channel")
	}
	normalized, contactType, err := contact.Normalize(rawValue)
	if err != nil {
		return nil, err
	}
	if channel == ChannelSMS && contactType != contact.TypePhone {
		return nil, dErrors.New(dErrors.CodeValidation, "sms channel requires a phone number")
	}
	if channel == ChannelEmail && contactType != contact.TypeEmail {
		return nil, dErrors.New(dErrors.CodeValidation, "email channel requires an email address")
	}

	c, err := s.contacts.CreateOrGet(ctx, normalized)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("contact_id", c.ID))

	if err := s.limiter.Allow(ctx, c.ID); err != nil {
		return nil, err
	}

	codeValue, err := generateCode()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
	}

	now := requestcontext.Now(ctx)
	code := &Code{
		ID:        uuid.NewString(),
		ContactID: c.ID,
		Code:      codeValue,
		Channel:   channel,
		SentTo:    normalized,
		Purpose:   purpose,
		Status:    StatusPending,
		ExpiresAt: now.Add(CodeTTL),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist code")
	}
	s.metrics.IncCodesIssued()

	subject, body := renderMessage(purpose, codeValue, CodeTTL)
	sendCtx, cancel := context.WithTimeout(ctx, senderTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, channel, normalized, codeValue, subject, body); err != nil {
		s.logger.ErrorContext(ctx, "verification code delivery failed",
			"contact_id", c.ID,
			"channel", channel,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to deliver verification code")
	}

	s.logger.InfoContext(ctx, "verification code issued",
		"contact_id", c.ID,
		"purpose", purpose,
		"channel", channel,
		"expires_at", code.ExpiresAt,
	)
	s.emit(ctx, audit.Event{
		ContactID: c.ID,
		Action:    audit.ActionCodeIssued,
		Channel:   string(channel),
		Detail:    string(purpose),
	})
	return &IssueResult{
		CodeID:    code.ID,
		Code:      codeValue,
		ContactID: c.ID,
		ExpiresAt: code.ExpiresAt,
	}, nil
}

// Verify matches a submitted code against the most recent pending code for
// the contact and, on success, mints a contact-scoped token. The status flip
// and the mint share one transactional boundary: a signing failure rolls the
// flip back, so a code is never consumed without a token reaching the caller.
func (s *Service) Verify(ctx context.Context, rawValue, codeValue string, channel Channel) (string, error) {
	ctx, span := s.tracer.Start(ctx, "verification.Verify",
		trace.WithAttributes(attribute.String("channel", string(channel))))
	defer span.End()

	if codeValue == "" {
		return "", dErrors.New(dErrors.CodeValidation, "code is required")
	}
	if channel != "" && !validChannel(channel) {
		return "", dErrors.New(dErrors.CodeValidation, "invalid channel")
	}
	contactID, err := s.contacts.DeriveID(rawValue)
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("contact_id", contactID))

	now := requestcontext.Now(ctx)
	var signed string
	err = s.tx.RunInTx(ctx, contactID, func(store Store) error {
		code, err := store.FindCurrent(ctx, contactID, codeValue, channel)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return errInvalidCode()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up code")
		}
		if code.Expired(now) {
			// Lazy pending → expired flip: the row was never swept, the
			// lookup is where staleness is discovered.
			if err := store.MarkExpired(ctx, code.ID); err != nil && !errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire code")
			}
			return errInvalidCode()
		}
		if err := store.MarkVerified(ctx, code.ID, now); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return errInvalidCode()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify code")
		}

		signed, err = s.tokens.Mint(contactID, token.ScopeContact, contactTokenTTL)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint token")
		}
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeValidation) {
			s.metrics.IncVerifyFailures()
		}
		return "", err
	}

	s.metrics.IncCodesVerified()
	s.logger.InfoContext(ctx, "verification succeeded", "contact_id", contactID)
	s.emit(ctx, audit.Event{
		ContactID: contactID,
		Action:    audit.ActionCodeVerified,
		Channel:   string(channel),
	})
	return signed, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"contact_id", event.ContactID,
			"error", err,
		)
	}
}

func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < codeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeLength, n), nil
}
