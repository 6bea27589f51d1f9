package httptransport

import (
	"net/http"
	"time"

	"consentry/internal/verification"
	dErrors "consentry/pkg/domain-errors"
	"consentry/pkg/requestcontext"
)

type sendCodeRequest struct {
	Contact string `json:"contact"`
	Purpose string `json:"purpose"`
	Channel string `json:"channel"`
}

type sendCodeResponse struct {
	ContactID string    `json:"contact_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleSendCode issues a verification code and hands it to the sender. The
// code itself never appears in the response.
func (h *Handler) handleSendCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req sendCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.verification.Issue(ctx, req.Contact, verification.Purpose(req.Purpose), verification.Channel(req.Channel))
	if err != nil {
		if dErrors.Is(err, dErrors.CodeValidation) || dErrors.Is(err, dErrors.CodeRateLimited) {
			writeError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to issue verification code",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, sendCodeResponse{
		ContactID: result.ContactID,
		ExpiresAt: result.ExpiresAt,
	})
}

type verifyRequest struct {
	Contact string `json:"contact"`
	Code    string `json:"code"`
	Channel string `json:"channel"`
}

type verifyResponse struct {
	Token string `json:"token"`
}

// handleVerify consumes a pending code and mints a contact-scoped token.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	signed, err := h.verification.Verify(ctx, req.Contact, req.Code, verification.Channel(req.Channel))
	if err != nil {
		if !dErrors.Is(err, dErrors.CodeValidation) {
			h.logger.ErrorContext(ctx, "failed to verify code",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{Token: signed})
}
