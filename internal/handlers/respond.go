package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carebridge/telehealth-identity/internal/oauth"
	"github.com/carebridge/telehealth-identity/internal/services"
	"github.com/rs/zerolog/log"
)

// respondSuccess writes {"success":true, ...payload}
func respondSuccess(w http.ResponseWriter, status int, payload map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// respondError writes {"success":false,"message":message}
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// respondServiceError maps service errors onto the HTTP taxonomy.
// Validation detail is safe to surface; anything unexpected is logged
// and reduced to a generic message.
func respondServiceError(w http.ResponseWriter, err error) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, validation.Message)
	case errors.Is(err, services.ErrEmailTaken):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, oauth.ErrInvalidProviderToken):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrInvalidResetToken):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Error().Err(err).Msg("Unexpected service error")
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
