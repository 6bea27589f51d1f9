package httptransport

import (
	"net/http"
)

type adminTokenRequest struct {
	Subject string `json:"subject"`
	Secret  string `json:"secret"`
}

// handleAdminToken exchanges the operator secret for an admin-scoped token.
func (h *Handler) handleAdminToken(w http.ResponseWriter, r *http.Request) {
	var req adminTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	signed, err := h.staff.Exchange(req.Subject, req.Secret)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Token: signed})
}
