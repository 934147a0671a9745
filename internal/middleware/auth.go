package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/carebridge/telehealth-identity/internal/models"
	"github.com/carebridge/telehealth-identity/internal/security"
	"github.com/carebridge/telehealth-identity/internal/services"
	"github.com/carebridge/telehealth-identity/internal/token"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	// UserContextKey carries the authenticated identity
	UserContextKey contextKey = "user_context"
	// ClaimsContextKey carries the raw session claims (logout needs
	// the expiry to size the denylist entry)
	ClaimsContextKey contextKey = "session_claims"
)

// Authenticate verifies the session token from the Authorization header
// or the session cookie, rejects revoked tokens, and attaches the
// identity to the request context.
func Authenticate(issuer *token.Issuer, auth *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				if cookie, err := r.Cookie(security.SessionCookieName); err == nil {
					raw = cookie.Value
				}
			}
			if raw == "" {
				unauthorized(w, "authentication required")
				return
			}

			claims, err := issuer.Verify(raw)
			if err != nil {
				unauthorized(w, "invalid or expired session")
				return
			}

			revoked, err := auth.IsRevoked(r.Context(), claims.ID)
			if err != nil {
				log.Error().Err(err).Msg("Denylist lookup failed")
				unauthorized(w, "invalid or expired session")
				return
			}
			if revoked {
				unauthorized(w, "invalid or expired session")
				return
			}

			userCtx := &models.UserContext{
				UserID:  claims.UserID,
				Email:   claims.Email,
				Role:    claims.Role,
				IsAdmin: claims.IsAdmin,
				TokenID: claims.ID,
			}
			ctx := context.WithValue(r.Context(), UserContextKey, userCtx)
			ctx = context.WithValue(ctx, ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin allows only accounts with the admin flag through
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userCtx, ok := GetUserContext(r.Context())
		if !ok || !userCtx.IsAdmin {
			unauthorized(w, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserContext extracts the authenticated identity from context
func GetUserContext(ctx context.Context) (*models.UserContext, bool) {
	userCtx, ok := ctx.Value(UserContextKey).(*models.UserContext)
	return userCtx, ok
}

// GetSessionClaims extracts the raw session claims from context
func GetSessionClaims(ctx context.Context) (*models.SessionClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*models.SessionClaims)
	return claims, ok
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
