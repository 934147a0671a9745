package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/carebridge/telehealth-identity/internal/models"
	"github.com/carebridge/telehealth-identity/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminHandler exposes the doctor moderation API
type AdminHandler struct {
	moderation *services.ModerationService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(moderation *services.ModerationService) *AdminHandler {
	return &AdminHandler{moderation: moderation}
}

// SetStatus moves a doctor account to a new approval status
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := doctorID(w, r)
	if !ok {
		return
	}

	var req models.SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		respondError(w, http.StatusBadRequest, "status is required")
		return
	}

	rows, err := h.moderation.SetStatus(r.Context(), id, req.Status, auditMeta(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// Zero rows means the id does not name a doctor; the store's
	// role scoping makes that a no-op rather than an error.
	respondSuccess(w, http.StatusOK, map[string]interface{}{"updated": rows})
}

// Approve is the legacy approval endpoint
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := doctorID(w, r)
	if !ok {
		return
	}

	rows, err := h.moderation.Approve(r.Context(), id, auditMeta(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{"updated": rows})
}

// Delete removes a doctor account
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := doctorID(w, r)
	if !ok {
		return
	}

	rows, err := h.moderation.Delete(r.Context(), id, auditMeta(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{"deleted": rows})
}

// ListDoctors returns doctor accounts, optionally filtered by status
func (h *AdminHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.moderation.ListDoctors(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{"doctors": doctors})
}

// AuditTrail returns the audit entries recorded for an account
func (h *AdminHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, err := h.moderation.AuditTrail(r.Context(), id, limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func doctorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid doctor id")
		return uuid.Nil, false
	}
	return id, true
}
