package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carebridge/telehealth-identity/internal/cache"
	"github.com/carebridge/telehealth-identity/internal/handlers"
	"github.com/carebridge/telehealth-identity/internal/middleware"
	"github.com/carebridge/telehealth-identity/internal/models"
	"github.com/carebridge/telehealth-identity/internal/oauth"
	"github.com/carebridge/telehealth-identity/internal/security"
	"github.com/carebridge/telehealth-identity/internal/services"
	"github.com/carebridge/telehealth-identity/internal/token"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ---- in-memory stores ----

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*models.User)}
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (s *memUserStore) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memUserStore) Create(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return gorm.ErrDuplicatedKey
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	copied := *user
	s.users[user.Email] = &copied
	return nil
}

func (s *memUserStore) UpdatePassword(_ context.Context, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[email]; ok {
		u.Password = &password
	}
	return nil
}

func (s *memUserStore) UpdateApproval(_ context.Context, id uuid.UUID, status models.ApprovalStatus, approved bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id && u.Role == models.RoleDoctor {
			u.Status = status
			u.IsApproved = approved
			return 1, nil
		}
	}
	return 0, nil
}

func (s *memUserStore) DeleteDoctor(_ context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, u := range s.users {
		if u.ID == id && u.Role == models.RoleDoctor {
			delete(s.users, email)
			return 1, nil
		}
	}
	return 0, nil
}

func (s *memUserStore) ListDoctors(_ context.Context, status models.ApprovalStatus) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.User
	for _, u := range s.users {
		if u.Role != models.RoleDoctor {
			continue
		}
		if status != "" && u.Status != status {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

type memResetStore struct {
	mu     sync.Mutex
	tokens map[string]*models.ResetToken
}

func newMemResetStore() *memResetStore {
	return &memResetStore{tokens: make(map[string]*models.ResetToken)}
}

func (s *memResetStore) Create(_ context.Context, t *models.ResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *t
	s.tokens[t.Token] = &copied
	return nil
}

func (s *memResetStore) Redeem(_ context.Context, raw string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[raw]
	if !ok || time.Now().After(t.ExpiresAt) {
		return "", nil
	}
	delete(s.tokens, raw)
	return t.Email, nil
}

func (s *memResetStore) DeleteByEmail(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.tokens {
		if t.Email == email {
			delete(s.tokens, k)
		}
	}
	return nil
}

type memAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *memAuditStore) Create(_ context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memAuditStore) ListByUser(_ context.Context, userID uuid.UUID, limit, _ int) ([]models.AuditLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AuditLog
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.entries[i].UserID == userID {
			out = append(out, s.entries[i])
		}
	}
	return out, nil
}

type captureMailer struct {
	mu     sync.Mutex
	tokens []string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _, _, resetToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = append(m.tokens, resetToken)
	return nil
}

func (m *captureMailer) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tokens) == 0 {
		return ""
	}
	return m.tokens[len(m.tokens)-1]
}

type stubVerifier struct {
	identity *oauth.Identity
	err      error
}

func (v *stubVerifier) Verify(_ context.Context, _ string) (*oauth.Identity, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.identity, nil
}

// ---- server fixture ----

type apiFixture struct {
	router   chi.Router
	users    *memUserStore
	audit    *memAuditStore
	mailer   *captureMailer
	verifier *stubVerifier
	issuer   *token.Issuer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	f := &apiFixture{
		users:    newMemUserStore(),
		audit:    &memAuditStore{},
		mailer:   &captureMailer{},
		verifier: &stubVerifier{},
		issuer:   token.NewIssuer("test-secret", 24*time.Hour),
	}
	denylist := cache.NewMemoryCache()
	t.Cleanup(func() { denylist.Close() })

	authService := services.NewAuthService(f.users, newMemResetStore(), f.audit, f.mailer, f.verifier, f.issuer, denylist)
	moderationService := services.NewModerationService(f.users, f.audit)

	authHandler := handlers.NewAuthHandler(authService, oauth.NewGoogleVerifier("", "", ""), 24*time.Hour, false, "")
	adminHandler := handlers.NewAdminHandler(moderationService)
	authenticate := middleware.Authenticate(f.issuer, authService)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.RegisterPatient)
			r.Post("/register/doctor", authHandler.RegisterDoctor)
			r.Post("/login", authHandler.Login)
			r.Post("/google", authHandler.GoogleLogin)
			r.Get("/google/start", authHandler.GoogleStart)
			r.Post("/forgot-password", authHandler.ForgotPassword)
			r.Post("/reset-password", authHandler.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireAdmin)

			r.Get("/doctors", adminHandler.ListDoctors)
			r.Patch("/doctors/{id}/status", adminHandler.SetStatus)
			r.Post("/doctors/{id}/approve", adminHandler.Approve)
			r.Delete("/doctors/{id}", adminHandler.Delete)
			r.Get("/users/{id}/audit", adminHandler.AuditTrail)
		})
	})
	f.router = r
	return f
}

func (f *apiFixture) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rec.Body.String(), err)
	}
	return body
}

func assertEnvelope(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, wantSuccess bool) map[string]interface{} {
	t.Helper()
	if rec.Code != wantCode {
		t.Fatalf("status = %d, want %d (body: %s)", rec.Code, wantCode, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != wantSuccess {
		t.Fatalf("success = %v, want %v (body: %s)", body["success"], wantSuccess, rec.Body.String())
	}
	if !wantSuccess {
		if _, ok := body["message"].(string); !ok {
			t.Fatalf("failure envelope missing message: %s", rec.Body.String())
		}
	}
	return body
}

func (f *apiFixture) registerAndLogin(t *testing.T, email string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Test", "email": email, "password": "pw",
	})
	assertEnvelope(t, rec, http.StatusCreated, true)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": "pw",
	})
	body := assertEnvelope(t, rec, http.StatusOK, true)
	signed, _ := body["token"].(string)
	if signed == "" {
		t.Fatal("login response missing token")
	}
	return signed
}

func (f *apiFixture) adminToken(t *testing.T) string {
	t.Helper()
	admin := &models.User{Email: "admin@x.com", Name: "Admin", Role: models.RolePatient, IsAdmin: true}
	if err := f.users.Create(context.Background(), admin); err != nil {
		t.Fatal(err)
	}
	signed, err := f.issuer.Issue(admin)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

// ---- tests ----

func TestRegisterEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Pat", "email": "pat@x.com", "password": "pw",
	})
	body := assertEnvelope(t, rec, http.StatusCreated, true)

	user, ok := body["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("response missing user: %s", rec.Body.String())
	}
	if user["email"] != "pat@x.com" {
		t.Errorf("email = %v", user["email"])
	}
	if _, leaked := user["password"]; leaked {
		t.Error("password serialized in response")
	}
}

func TestRegisterDuplicateEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndLogin(t, "pat@x.com")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "Other", "email": "pat@x.com", "password": "pw",
	})
	assertEnvelope(t, rec, http.StatusConflict, false)
}

func TestRegisterMalformedBody(t *testing.T) {
	f := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assertEnvelope(t, rec, http.StatusBadRequest, false)
}

func TestRegisterDoctorEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register/doctor", "", map[string]string{
		"name": "Dr", "email": "doc@x.com", "password": "pw", "specialization": "Cardiology",
	})
	body := assertEnvelope(t, rec, http.StatusCreated, true)
	user := body["user"].(map[string]interface{})
	if user["status"] != string(models.StatusPending) {
		t.Errorf("status = %v, want PENDING", user["status"])
	}

	rec = f.do(t, http.MethodPost, "/api/v1/auth/register/doctor", "", map[string]string{
		"name": "Dr2", "email": "doc2@x.com", "password": "pw",
	})
	assertEnvelope(t, rec, http.StatusBadRequest, false)
}

func TestLoginEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndLogin(t, "pat@x.com")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "pat@x.com", "password": "wrong",
	})
	assertEnvelope(t, rec, http.StatusUnauthorized, false)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "pat@x.com", "password": "pw",
	})
	assertEnvelope(t, rec, http.StatusOK, true)

	var sessionCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == security.SessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("login did not set the session cookie")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie is not HttpOnly")
	}
}

func TestMeEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assertEnvelope(t, rec, http.StatusUnauthorized, false)

	signed := f.registerAndLogin(t, "pat@x.com")
	rec = f.do(t, http.MethodGet, "/api/v1/auth/me", signed, nil)
	body := assertEnvelope(t, rec, http.StatusOK, true)
	user := body["user"].(map[string]interface{})
	if user["email"] != "pat@x.com" {
		t.Errorf("email = %v", user["email"])
	}
}

func TestMeAcceptsSessionCookie(t *testing.T) {
	f := newAPIFixture(t)
	signed := f.registerAndLogin(t, "pat@x.com")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: security.SessionCookieName, Value: signed})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assertEnvelope(t, rec, http.StatusOK, true)
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newAPIFixture(t)
	signed := f.registerAndLogin(t, "pat@x.com")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", signed, nil)
	assertEnvelope(t, rec, http.StatusOK, true)

	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == security.SessionCookieName {
			cleared = c
		}
	}
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Error("logout did not clear the session cookie")
	}

	// The revoked token no longer authenticates.
	rec = f.do(t, http.MethodGet, "/api/v1/auth/me", signed, nil)
	assertEnvelope(t, rec, http.StatusUnauthorized, false)
}

func TestForgotPasswordEnvelopeDoesNotLeakRegistration(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndLogin(t, "pat@x.com")

	known := f.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "pat@x.com"})
	unknown := f.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "ghost@x.com"})

	knownBody := assertEnvelope(t, known, http.StatusOK, true)
	unknownBody := assertEnvelope(t, unknown, http.StatusOK, true)
	if knownBody["message"] != unknownBody["message"] {
		t.Errorf("envelopes differ: %v vs %v", knownBody["message"], unknownBody["message"])
	}
	if len(f.mailer.tokens) != 1 {
		t.Errorf("expected 1 mail for known address only, got %d", len(f.mailer.tokens))
	}
}

func TestResetPasswordEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.registerAndLogin(t, "pat@x.com")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "pat@x.com"})
	assertEnvelope(t, rec, http.StatusOK, true)
	raw := f.mailer.last()

	rec = f.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"token": raw, "new_password": "newpw",
	})
	assertEnvelope(t, rec, http.StatusOK, true)

	// Replay fails; bogus tokens fail the same way.
	rec = f.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"token": raw, "new_password": "again",
	})
	assertEnvelope(t, rec, http.StatusBadRequest, false)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "pat@x.com", "password": "newpw",
	})
	assertEnvelope(t, rec, http.StatusOK, true)
}

func TestGoogleLoginEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.verifier.identity = &oauth.Identity{Email: "fed@x.com", Name: "Fed", Subject: "sub-1"}

	rec := f.do(t, http.MethodPost, "/api/v1/auth/google", "", map[string]string{"token": "provider-token"})
	body := assertEnvelope(t, rec, http.StatusOK, true)
	if body["token"] == "" {
		t.Error("federated login response missing session token")
	}
	user := body["user"].(map[string]interface{})
	if user["email"] != "fed@x.com" {
		t.Errorf("email = %v", user["email"])
	}

	f.verifier.identity = nil
	f.verifier.err = oauth.ErrInvalidProviderToken
	rec = f.do(t, http.MethodPost, "/api/v1/auth/google", "", map[string]string{"token": "bad"})
	assertEnvelope(t, rec, http.StatusUnauthorized, false)
}

func TestGoogleStartUnconfigured(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/auth/google/start", "", nil)
	assertEnvelope(t, rec, http.StatusBadRequest, false)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/admin/doctors", "", nil)
	assertEnvelope(t, rec, http.StatusUnauthorized, false)

	patientToken := f.registerAndLogin(t, "pat@x.com")
	rec = f.do(t, http.MethodGet, "/api/v1/admin/doctors", patientToken, nil)
	assertEnvelope(t, rec, http.StatusUnauthorized, false)
}

func TestAdminModerationFlow(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.adminToken(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register/doctor", "", map[string]string{
		"name": "Dr", "email": "doc@x.com", "password": "pw", "specialization": "Cardiology",
	})
	body := assertEnvelope(t, rec, http.StatusCreated, true)
	doctorID := body["user"].(map[string]interface{})["id"].(string)

	rec = f.do(t, http.MethodPatch, "/api/v1/admin/doctors/not-a-uuid/status", admin, map[string]string{"status": "APPROVED"})
	assertEnvelope(t, rec, http.StatusBadRequest, false)

	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/admin/doctors/%s/status", doctorID), admin, map[string]string{"status": "REJECTED"})
	assertEnvelope(t, rec, http.StatusBadRequest, false)

	rec = f.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/admin/doctors/%s/status", doctorID), admin, map[string]string{"status": "APPROVED"})
	body = assertEnvelope(t, rec, http.StatusOK, true)
	if body["updated"] != float64(1) {
		t.Errorf("updated = %v, want 1", body["updated"])
	}

	rec = f.do(t, http.MethodGet, "/api/v1/admin/doctors?status=APPROVED", admin, nil)
	body = assertEnvelope(t, rec, http.StatusOK, true)
	doctors := body["doctors"].([]interface{})
	if len(doctors) != 1 {
		t.Fatalf("len(doctors) = %d, want 1", len(doctors))
	}
	approved := doctors[0].(map[string]interface{})
	if approved["status"] != string(models.StatusApproved) || approved["is_approved"] != true {
		t.Errorf("approval mirror out of sync: %v / %v", approved["status"], approved["is_approved"])
	}

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/doctors/%s", doctorID), admin, nil)
	body = assertEnvelope(t, rec, http.StatusOK, true)
	if body["deleted"] != float64(1) {
		t.Errorf("deleted = %v, want 1", body["deleted"])
	}

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/doctors/%s", doctorID), admin, nil)
	body = assertEnvelope(t, rec, http.StatusOK, true)
	if body["deleted"] != float64(0) {
		t.Errorf("repeat delete = %v, want 0", body["deleted"])
	}
}

func TestAuditTrailEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.adminToken(t)
	f.registerAndLogin(t, "pat@x.com")

	user, err := f.users.FindByEmail(context.Background(), "pat@x.com")
	if err != nil || user == nil {
		t.Fatal("account not found")
	}

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/users/%s/audit", user.ID), admin, nil)
	body := assertEnvelope(t, rec, http.StatusOK, true)
	entries := body["entries"].([]interface{})
	if len(entries) < 2 {
		t.Fatalf("len(entries) = %d, want registration and login", len(entries))
	}
	newest := entries[0].(map[string]interface{})
	if newest["action"] != models.ActionLogin {
		t.Errorf("newest action = %v, want %v", newest["action"], models.ActionLogin)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/admin/users/not-a-uuid/audit", admin, nil)
	assertEnvelope(t, rec, http.StatusBadRequest, false)
}

func TestApproveEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.adminToken(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/register/doctor", "", map[string]string{
		"name": "Dr", "email": "doc@x.com", "password": "pw", "specialization": "Oncology",
	})
	body := assertEnvelope(t, rec, http.StatusCreated, true)
	doctorID := body["user"].(map[string]interface{})["id"].(string)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/doctors/%s/approve", doctorID), admin, nil)
	body = assertEnvelope(t, rec, http.StatusOK, true)
	if body["updated"] != float64(1) {
		t.Errorf("updated = %v, want 1", body["updated"])
	}

	// A random id is a no-op, not an error.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/doctors/%s/approve", uuid.NewString()), admin, nil)
	body = assertEnvelope(t, rec, http.StatusOK, true)
	if body["updated"] != float64(0) {
		t.Errorf("updated = %v, want 0", body["updated"])
	}
}
