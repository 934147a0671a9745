package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/carebridge/telehealth-identity/internal/database"
	"github.com/carebridge/telehealth-identity/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository handles account database operations
type UserRepository struct{}

// NewUserRepository creates a new user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// FindByEmail retrieves an account by email. Returns (nil, nil) when no
// account matches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := database.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &user, nil
}

// FindByID retrieves an account by id. Returns (nil, nil) when no
// account matches.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := database.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return &user, nil
}

// Create inserts a new account together with its default preference
// record. A unique-constraint violation on email surfaces as
// gorm.ErrDuplicatedKey so callers can translate the race into a
// conflict instead of a generic failure.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	err := database.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		return tx.Create(models.DefaultPreference(user.ID)).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return gorm.ErrDuplicatedKey
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdatePassword stores a new password value for the account with the
// given email.
func (r *UserRepository) UpdatePassword(ctx context.Context, email, password string) error {
	if err := database.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", email).
		Update("password", password).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// UpdateApproval writes status and its derived mirror flag in a single
// UPDATE scoped to doctor rows. The returned count is zero when the id
// does not name a doctor, which moderation treats as a silent no-op.
func (r *UserRepository) UpdateApproval(ctx context.Context, id uuid.UUID, status models.ApprovalStatus, approved bool) (int64, error) {
	result := database.DB.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND role = ?", id, models.RoleDoctor).
		Updates(map[string]interface{}{
			"status":      status,
			"is_approved": approved,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update approval: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteDoctor removes a doctor account. Non-doctor ids affect zero rows.
func (r *UserRepository) DeleteDoctor(ctx context.Context, id uuid.UUID) (int64, error) {
	result := database.DB.WithContext(ctx).
		Where("id = ? AND role = ?", id, models.RoleDoctor).
		Delete(&models.User{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete doctor: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListDoctors retrieves doctor accounts, optionally filtered by status
func (r *UserRepository) ListDoctors(ctx context.Context, status models.ApprovalStatus) ([]models.User, error) {
	query := database.DB.WithContext(ctx).
		Where("role = ?", models.RoleDoctor).
		Order("created_at ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var doctors []models.User
	if err := query.Find(&doctors).Error; err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, nil
}
