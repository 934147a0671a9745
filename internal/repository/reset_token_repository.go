package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/carebridge/telehealth-identity/internal/database"
	"github.com/carebridge/telehealth-identity/internal/models"
	"gorm.io/gorm/clause"
)

// ResetTokenRepository handles password-recovery token persistence
type ResetTokenRepository struct{}

// NewResetTokenRepository creates a new reset token repository
func NewResetTokenRepository() *ResetTokenRepository {
	return &ResetTokenRepository{}
}

// Create persists a reset token
func (r *ResetTokenRepository) Create(ctx context.Context, token *models.ResetToken) error {
	if err := database.DB.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to create reset token: %w", err)
	}
	return nil
}

// Redeem consumes a token in a single atomic delete. Exactly one of two
// concurrent redemptions can observe the row; the loser sees zero rows
// affected, the same as an expired or unknown token. Returns the target
// email, or "" when the token is not redeemable.
func (r *ResetTokenRepository) Redeem(ctx context.Context, token string) (string, error) {
	var consumed models.ResetToken
	result := database.DB.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("token = ? AND expires_at > ?", token, time.Now()).
		Delete(&consumed)
	if result.Error != nil {
		return "", fmt.Errorf("failed to redeem reset token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", nil
	}
	return consumed.Email, nil
}

// DeleteByEmail removes any outstanding tokens for an email. A new
// recovery request invalidates earlier ones.
func (r *ResetTokenRepository) DeleteByEmail(ctx context.Context, email string) error {
	if err := database.DB.WithContext(ctx).
		Where("email = ?", email).
		Delete(&models.ResetToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete reset tokens: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens past their expiry
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context) error {
	if err := database.DB.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&models.ResetToken{}).Error; err != nil {
		return fmt.Errorf("failed to delete expired reset tokens: %w", err)
	}
	return nil
}
