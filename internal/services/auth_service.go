package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/carebridge/telehealth-identity/internal/cache"
	"github.com/carebridge/telehealth-identity/internal/metrics"
	"github.com/carebridge/telehealth-identity/internal/models"
	"github.com/carebridge/telehealth-identity/internal/security"
	"github.com/carebridge/telehealth-identity/internal/token"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const resetTokenTTL = 1 * time.Hour

// AuditMeta carries request attribution for audit entries
type AuditMeta struct {
	IPAddress string
	UserAgent string
}

// AuthService orchestrates credential verification, session issuance,
// password recovery and identity federation.
type AuthService struct {
	users    UserStore
	resets   ResetTokenStore
	audit    AuditStore
	mailer   PasswordMailer
	verifier IdentityVerifier
	issuer   *token.Issuer
	denylist cache.Cache
}

// NewAuthService creates a new auth service
func NewAuthService(
	users UserStore,
	resets ResetTokenStore,
	audit AuditStore,
	mailer PasswordMailer,
	verifier IdentityVerifier,
	issuer *token.Issuer,
	denylist cache.Cache,
) *AuthService {
	return &AuthService{
		users:    users,
		resets:   resets,
		audit:    audit,
		mailer:   mailer,
		verifier: verifier,
		issuer:   issuer,
		denylist: denylist,
	}
}

// Register creates a local account with the given role. Doctor accounts
// start in PENDING and require a specialization; no session token is
// issued, the caller must log in separately.
func (s *AuthService) Register(ctx context.Context, role models.Role, req *models.RegisterRequest, meta AuditMeta) (*models.User, error) {
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return nil, NewValidationError("name, email and password are required")
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return nil, NewValidationError("invalid email address")
	}
	if role == models.RoleDoctor && req.Specialization == "" {
		return nil, NewValidationError("specialization is required for doctor registration")
	}

	existing, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if existing != nil {
		metrics.Registrations.WithLabelValues(string(role), metrics.ResultFailure).Inc()
		return nil, ErrEmailTaken
	}

	// Passwords are stored as submitted; only the reset flow writes
	// digests. Verification handles both encodings.
	password := req.Password
	user := &models.User{
		Email:          req.Email,
		Name:           req.Name,
		Password:       &password,
		Role:           role,
		Phone:          req.Phone,
		Specialization: req.Specialization,
	}
	if role == models.RoleDoctor {
		user.Status = models.StatusPending
		user.IsApproved = false
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Concurrent registration with the same email races at the
		// store's unique constraint; the loser sees a duplicate key,
		// not a generic failure.
		if gormDuplicate(err) {
			metrics.Registrations.WithLabelValues(string(role), metrics.ResultFailure).Inc()
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	metrics.Registrations.WithLabelValues(string(role), metrics.ResultSuccess).Inc()
	s.record(ctx, user.ID.String(), models.ActionRegister, "user", user.ID.String(), "success", "", meta)
	return user, nil
}

// Login verifies credentials and issues a session token
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest, meta AuditMeta) (*models.User, string, error) {
	if req.Email == "" || req.Password == "" {
		return nil, "", NewValidationError("email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up account: %w", err)
	}
	if user == nil || !user.HasLocalPassword() || !security.VerifyPassword(req.Password, *user.Password) {
		metrics.Logins.WithLabelValues(metrics.ResultFailure).Inc()
		s.record(ctx, "", models.ActionLogin, "user", req.Email, "failure", "invalid credentials", meta)
		return nil, "", ErrInvalidCredentials
	}

	signed, err := s.issuer.Issue(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue session token: %w", err)
	}

	metrics.Logins.WithLabelValues(metrics.ResultSuccess).Inc()
	s.record(ctx, user.ID.String(), models.ActionLogin, "user", user.ID.String(), "success", "", meta)
	return user, signed, nil
}

// GoogleLogin verifies a provider token and resolves it to a local
// account, creating one on first login. Resolution is idempotent:
// repeated logins with the same email never create duplicates. A
// session token is issued the same way local login does.
func (s *AuthService) GoogleLogin(ctx context.Context, providerToken string, meta AuditMeta) (*models.User, string, error) {
	if providerToken == "" {
		return nil, "", NewValidationError("token is required")
	}

	identity, err := s.verifier.Verify(ctx, providerToken)
	if err != nil {
		metrics.FederatedLogins.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, "", err
	}

	user, err := s.users.FindByEmail(ctx, identity.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up account: %w", err)
	}

	if user == nil {
		name := identity.Name
		if name == "" {
			name = strings.Split(identity.Email, "@")[0]
		}
		user = &models.User{
			Email:    identity.Email,
			Name:     name,
			Password: nil,
			Role:     models.RolePatient,
		}
		if err := s.users.Create(ctx, user); err != nil {
			if gormDuplicate(err) {
				// Lost a first-login race; the other request
				// created the account.
				user, err = s.users.FindByEmail(ctx, identity.Email)
				if err != nil || user == nil {
					return nil, "", fmt.Errorf("failed to resolve federated account: %w", err)
				}
			} else {
				return nil, "", fmt.Errorf("failed to create federated account: %w", err)
			}
		}
	}

	signed, err := s.issuer.Issue(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue session token: %w", err)
	}

	metrics.FederatedLogins.WithLabelValues(metrics.ResultSuccess).Inc()
	s.record(ctx, user.ID.String(), models.ActionFederatedLogin, "user", user.ID.String(), "success", "", meta)
	return user, signed, nil
}

// ForgotPassword initiates recovery. Unknown emails and federated-only
// accounts return nil without side effects so the response cannot be
// used to probe which emails are registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, meta AuditMeta) error {
	if email == "" {
		return NewValidationError("email is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if user == nil || !user.HasLocalPassword() {
		return nil
	}

	raw, err := generateResetToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	// A new request invalidates earlier outstanding tokens.
	if err := s.resets.DeleteByEmail(ctx, user.Email); err != nil {
		log.Warn().Err(err).Msg("Failed to clear previous reset tokens")
	}

	if err := s.resets.Create(ctx, &models.ResetToken{
		Token:     raw,
		Email:     user.Email,
		ExpiresAt: time.Now().Add(resetTokenTTL),
	}); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.mailer.SendPasswordReset(ctx, user.Email, user.Name, raw); err != nil {
		return fmt.Errorf("failed to send recovery mail: %w", err)
	}

	s.record(ctx, user.ID.String(), models.ActionForgotPassword, "user", user.ID.String(), "success", "", meta)
	return nil
}

// ResetPassword redeems a recovery token and stores the new password as
// a bcrypt digest. Redemption consumes the token; a second attempt with
// the same token fails like a token that never existed.
func (s *AuthService) ResetPassword(ctx context.Context, req *models.ResetPasswordRequest, meta AuditMeta) error {
	if req.Token == "" || req.NewPassword == "" {
		return NewValidationError("token and new password are required")
	}

	email, err := s.resets.Redeem(ctx, req.Token)
	if err != nil {
		return fmt.Errorf("failed to redeem reset token: %w", err)
	}
	if email == "" {
		metrics.PasswordResets.WithLabelValues(metrics.ResultFailure).Inc()
		return ErrInvalidResetToken
	}

	digest, err := security.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, email, digest); err != nil {
		return fmt.Errorf("failed to store new password: %w", err)
	}

	metrics.PasswordResets.WithLabelValues(metrics.ResultSuccess).Inc()
	s.record(ctx, "", models.ActionResetPassword, "user", email, "success", "", meta)
	return nil
}

// Logout revokes the presented session token by denylisting its ID for
// the token's remaining lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *models.SessionClaims, meta AuditMeta) error {
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}
	if err := s.denylist.Set(ctx, cache.DenylistKey(claims.ID), []byte("1"), remaining); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	s.record(ctx, claims.UserID.String(), models.ActionLogout, "session", claims.ID, "success", "", meta)
	return nil
}

// IsRevoked reports whether a session token ID has been denylisted
func (s *AuthService) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return s.denylist.Exists(ctx, cache.DenylistKey(tokenID))
}

// CurrentUser loads the account behind an authenticated request
func (s *AuthService) CurrentUser(ctx context.Context, userCtx *models.UserContext) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userCtx.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return user, nil
}

// record writes an audit entry; failures are logged, never surfaced
func (s *AuthService) record(ctx context.Context, userID, action, resourceType, resourceID, status, errMsg string, meta AuditMeta) {
	entry := &models.AuditLog{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		Status:       status,
		ErrorMessage: errMsg,
	}
	if userID != "" {
		if id, err := uuid.Parse(userID); err == nil {
			entry.UserID = id
		}
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("Failed to write audit entry")
	}
}

// generateResetToken produces a 256-bit hex-encoded random token
func generateResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func gormDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
