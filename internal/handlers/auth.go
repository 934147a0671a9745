package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/carebridge/telehealth-identity/internal/middleware"
	"github.com/carebridge/telehealth-identity/internal/models"
	"github.com/carebridge/telehealth-identity/internal/oauth"
	"github.com/carebridge/telehealth-identity/internal/security"
	"github.com/carebridge/telehealth-identity/internal/services"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const oauthStateCookie = "oauth_state"

// AuthHandler exposes the identity operations over HTTP
type AuthHandler struct {
	authService   *services.AuthService
	google        *oauth.GoogleVerifier
	sessionTTL    time.Duration
	secureCookies bool
	redirectBase  string
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *services.AuthService, google *oauth.GoogleVerifier, sessionTTL time.Duration, secureCookies bool, redirectBase string) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		google:        google,
		sessionTTL:    sessionTTL,
		secureCookies: secureCookies,
		redirectBase:  redirectBase,
	}
}

// RegisterPatient handles patient self-registration
func (h *AuthHandler) RegisterPatient(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, models.RolePatient)
}

// RegisterDoctor handles doctor self-registration; accounts start PENDING
func (h *AuthHandler) RegisterDoctor(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, models.RoleDoctor)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request, role models.Role) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.authService.Register(r.Context(), role, &req, auditMeta(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusCreated, map[string]interface{}{"user": user})
}

// Login verifies credentials, issues a session token and sets the
// session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, signed, err := h.authService.Login(r.Context(), &req, auditMeta(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	http.SetCookie(w, security.SessionCookie(signed, h.sessionTTL, h.secureCookies))
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"user":  user,
		"token": signed,
	})
}

// GoogleLogin accepts a provider-issued ID token directly
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.GoogleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.completeFederatedLogin(w, r, req.Token)
}

// GoogleStart begins the authorization-code flow
func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	if !h.google.Configured() {
		respondError(w, http.StatusBadRequest, "google login is not configured")
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthCodeURL(state, h.googleRedirectURL(r)), http.StatusFound)
}

// GoogleCallback completes the authorization-code flow
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.google.Configured() {
		respondError(w, http.StatusBadRequest, "google login is not configured")
		return
	}

	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if code == "" || err != nil || stateCookie.Value == "" || stateCookie.Value != state {
		respondError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	idToken, err := h.google.Exchange(r.Context(), code, h.googleRedirectURL(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	h.completeFederatedLogin(w, r, idToken)
}

func (h *AuthHandler) completeFederatedLogin(w http.ResponseWriter, r *http.Request, providerToken string) {
	user, signed, err := h.authService.GoogleLogin(r.Context(), providerToken, auditMeta(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	http.SetCookie(w, security.SessionCookie(signed, h.sessionTTL, h.secureCookies))
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"user": models.FederatedProfile{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
		},
		"token": signed,
	})
}

// ForgotPassword initiates password recovery. The response shape does
// not reveal whether the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.authService.ForgotPassword(r.Context(), req.Email, auditMeta(r)); err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "if that email is registered, a recovery link has been sent",
	})
}

// ResetPassword completes recovery with a one-time token
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.authService.ResetPassword(r.Context(), &req, auditMeta(r)); err != nil {
		respondServiceError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "password updated",
	})
}

// Logout revokes the current session token and clears the cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetSessionClaims(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.authService.Logout(r.Context(), claims, auditMeta(r)); err != nil {
		log.Error().Err(err).Msg("Failed to revoke session")
		respondError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	http.SetCookie(w, security.ClearSessionCookie(h.secureCookies))
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"message": "logged out",
	})
}

// Me returns the authenticated account's projection
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userCtx, ok := middleware.GetUserContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.authService.CurrentUser(r.Context(), userCtx)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (h *AuthHandler) googleRedirectURL(r *http.Request) string {
	base := h.redirectBase
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, r.Host)
	}
	return base + "/api/v1/auth/google/callback"
}

func auditMeta(r *http.Request) services.AuditMeta {
	return services.AuditMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}
