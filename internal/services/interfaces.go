package services

import (
	"context"

	"github.com/carebridge/telehealth-identity/internal/models"
	"github.com/carebridge/telehealth-identity/internal/oauth"
	"github.com/google/uuid"
)

// UserStore is the credential store consumed by the services
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, email, password string) error
	UpdateApproval(ctx context.Context, id uuid.UUID, status models.ApprovalStatus, approved bool) (int64, error)
	DeleteDoctor(ctx context.Context, id uuid.UUID) (int64, error)
	ListDoctors(ctx context.Context, status models.ApprovalStatus) ([]models.User, error)
}

// ResetTokenStore is the single-use recovery token ledger
type ResetTokenStore interface {
	Create(ctx context.Context, token *models.ResetToken) error
	Redeem(ctx context.Context, token string) (string, error)
	DeleteByEmail(ctx context.Context, email string) error
}

// AuditStore records identity events
type AuditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// PasswordMailer is the out-of-band delivery channel for recovery links
type PasswordMailer interface {
	SendPasswordReset(ctx context.Context, toEmail, toName, resetToken string) error
}

// IdentityVerifier validates third-party identity assertions
type IdentityVerifier interface {
	Verify(ctx context.Context, providerToken string) (*oauth.Identity, error)
}
