package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consentry/internal/program"
	dErrors "consentry/pkg/domain-errors"
)

type programResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toProgramResponse(p *program.Program) programResponse {
	return programResponse{
		ID:        p.ID,
		Name:      p.Name,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *Handler) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.programs.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProgramResponse(p))
}

func (h *Handler) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs, err := h.programs.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]programResponse, 0, len(programs))
	for _, p := range programs {
		out = append(out, toProgramResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"programs": out})
}

func (h *Handler) handleCloseProgram(w http.ResponseWriter, r *http.Request) {
	p, err := h.programs.Close(r.Context(), chi.URLParam(r, "programID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgramResponse(p))
}

func (h *Handler) handleReopenProgram(w http.ResponseWriter, r *http.Request) {
	p, err := h.programs.Reopen(r.Context(), chi.URLParam(r, "programID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProgramResponse(p))
}

// handleGetContact returns the contact with its value masked; plaintext never
// leaves the service layer.
func (h *Handler) handleGetContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.contacts.Get(ctx, chi.URLParam(r, "contactID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           c.ID,
		"display":      h.contacts.Display(ctx, c),
		"contact_type": string(c.Type),
		"status":       string(c.Status),
		"opt_out_all":  c.OptOutAll,
		"created_at":   c.CreatedAt,
		"updated_at":   c.UpdatedAt,
	})
}

func (h *Handler) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	if err := h.contacts.HardDelete(r.Context(), chi.URLParam(r, "contactID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSecrets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"names": h.vault.List()})
}

func (h *Handler) handleSetSecret(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Value == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "value is required"))
		return
	}
	if err := h.vault.Set(chi.URLParam(r, "name"), req.Value); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to persist secret", "error", err.Error())
		writeError(w, dErrors.New(dErrors.CodeInternal, "failed to store secret"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	if err := h.vault.Delete(chi.URLParam(r, "name")); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to delete secret", "error", err.Error())
		writeError(w, dErrors.New(dErrors.CodeInternal, "failed to delete secret"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
