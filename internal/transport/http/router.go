// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// services, and encode; authorization and business rules live in the services.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"consentry/internal/consent"
	"consentry/internal/contact"
	"consentry/internal/platform/metrics"
	"consentry/internal/platform/middleware"
	"consentry/internal/program"
	"consentry/internal/token"
	"consentry/internal/vault"
	"consentry/internal/verification"
)

// VerificationService is the verification flow the transport depends on.
type VerificationService interface {
	Issue(ctx context.Context, rawValue string, purpose verification.Purpose, channel verification.Channel) (*verification.IssueResult, error)
	Verify(ctx context.Context, rawValue, code string, channel verification.Channel) (string, error)
}

// ConsentService is the consent surface the transport depends on.
type ConsentService interface {
	GetCurrent(ctx context.Context, contactID, programID string, channel consent.Channel) (*consent.Consent, error)
	EffectiveStatus(ctx context.Context, contactID, programID string, channel consent.Channel) (consent.Status, error)
	ListByContact(ctx context.Context, contactID string) ([]*consent.Consent, error)
	Upsert(ctx context.Context, in consent.UpsertInput) (*consent.Consent, error)
	GlobalOptOut(ctx context.Context, contactID string) error
}

// ContactService is the contact surface the transport depends on.
type ContactService interface {
	Get(ctx context.Context, id string) (*contact.Contact, error)
	Display(ctx context.Context, c *contact.Contact) string
	HardDelete(ctx context.Context, id string) error
}

// ProgramService is the program registry surface the transport depends on.
type ProgramService interface {
	Create(ctx context.Context, name string) (*program.Program, error)
	Get(ctx context.Context, id string) (*program.Program, error)
	List(ctx context.Context) ([]*program.Program, error)
	Close(ctx context.Context, id string) (*program.Program, error)
	Reopen(ctx context.Context, id string) (*program.Program, error)
}

// Handler holds the wired services.
type Handler struct {
	verification VerificationService
	consents     ConsentService
	contacts     ContactService
	programs     ProgramService
	vault        *vault.Vault
	tokens       middleware.TokenValidator
	staff        *token.StaffAuth
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

func NewHandler(
	verificationSvc VerificationService,
	consents ConsentService,
	contacts ContactService,
	programs ProgramService,
	v *vault.Vault,
	tokens middleware.TokenValidator,
	staff *token.StaffAuth,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		verification: verificationSvc,
		consents:     consents,
		contacts:     contacts,
		programs:     programs,
		vault:        v,
		tokens:       tokens,
		staff:        staff,
		metrics:      m,
		logger:       logger,
	}
}

// NewRouter wires all endpoints behind the middleware chain.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Latency(h.metrics))

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Public: a contact proves ownership before it holds any token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Post("/verification/send-code", h.handleSendCode)
		r.Post("/verification/verify", h.handleVerify)
		r.Post("/auth/admin-token", h.handleAdminToken)
	})

	// Authenticated: scope-vs-subject checks live in the consent service.
	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.tokens, h.logger))
		r.Get("/consents/{contactID}", h.handleListConsents)
		r.Get("/consents/{contactID}/programs/{programID}", h.handleGetConsent)
		r.Put("/consents/{contactID}/programs/{programID}", h.handleUpsertConsent)
		r.Post("/consents/{contactID}/global-opt-out", h.handleGlobalOptOut)
	})

	// Admin-only surfaces.
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.tokens, h.logger))
		r.Use(middleware.RequireScope(token.ScopeAdmin))

		r.Post("/programs", h.handleCreateProgram)
		r.Get("/programs", h.handleListPrograms)
		r.Post("/programs/{programID}/close", h.handleCloseProgram)
		r.Post("/programs/{programID}/reopen", h.handleReopenProgram)

		r.Get("/contacts/{contactID}", h.handleGetContact)
		r.Delete("/contacts/{contactID}", h.handleDeleteContact)

		r.Get("/vault/secrets", h.handleListSecrets)
		r.Put("/vault/secrets/{name}", h.handleSetSecret)
		r.Delete("/vault/secrets/{name}", h.handleDeleteSecret)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
