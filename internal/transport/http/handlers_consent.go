package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consentry/internal/consent"
	dErrors "consentry/pkg/domain-errors"
)

type consentResponse struct {
	ProgramID        string     `json:"program_id"`
	Channel          string     `json:"channel"`
	Status           string     `json:"status"`
	ConsentTimestamp *time.Time `json:"consent_timestamp,omitempty"`
	RevokedTimestamp *time.Time `json:"revoked_timestamp,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

func toConsentResponse(c *consent.Consent) consentResponse {
	return consentResponse{
		ProgramID:        c.ProgramID,
		Channel:          string(c.Channel),
		Status:           string(c.Status),
		ConsentTimestamp: c.ConsentTimestamp,
		RevokedTimestamp: c.RevokedTimestamp,
		Notes:            c.Notes,
	}
}

func (h *Handler) handleListConsents(w http.ResponseWriter, r *http.Request) {
	contactID := chi.URLParam(r, "contactID")

	rows, err := h.consents.ListByContact(r.Context(), contactID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]consentResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, toConsentResponse(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{"consents": out})
}

// handleGetConsent reports the effective status for one program and channel,
// plus the stored row when one exists.
func (h *Handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contactID := chi.URLParam(r, "contactID")
	programID := chi.URLParam(r, "programID")
	channel := consent.Channel(r.URL.Query().Get("channel"))

	status, err := h.consents.EffectiveStatus(ctx, contactID, programID, channel)
	if err != nil {
		writeError(w, err)
		return
	}
	body := map[string]any{
		"program_id": programID,
		"channel":    string(channel),
		"status":     string(status),
	}
	row, err := h.consents.GetCurrent(ctx, contactID, programID, channel)
	if err != nil {
		writeError(w, err)
		return
	}
	if row != nil {
		body["consent"] = toConsentResponse(row)
	}
	writeJSON(w, http.StatusOK, body)
}

type upsertConsentRequest struct {
	Channel string `json:"channel"`
	OptedIn *bool  `json:"opted_in"`
	Notes   string `json:"notes"`
}

func (h *Handler) handleUpsertConsent(w http.ResponseWriter, r *http.Request) {
	var req upsertConsentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.OptedIn == nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "opted_in is required"))
		return
	}

	row, err := h.consents.Upsert(r.Context(), consent.UpsertInput{
		ContactID: chi.URLParam(r, "contactID"),
		ProgramID: chi.URLParam(r, "programID"),
		Channel:   consent.Channel(req.Channel),
		OptedIn:   *req.OptedIn,
		Notes:     req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsentResponse(row))
}

func (h *Handler) handleGlobalOptOut(w http.ResponseWriter, r *http.Request) {
	if err := h.consents.GlobalOptOut(r.Context(), chi.URLParam(r, "contactID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
