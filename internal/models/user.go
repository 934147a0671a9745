package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role represents the kind of account
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// ApprovalStatus tracks the moderation state of doctor accounts
type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "PENDING"
	StatusApproved  ApprovalStatus = "APPROVED"
	StatusSuspended ApprovalStatus = "SUSPENDED"
	StatusBanned    ApprovalStatus = "BANNED"
)

// IsValid reports whether s is one of the four recognized status literals
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusSuspended, StatusBanned:
		return true
	}
	return false
}

// User represents an account on the platform
type User struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Email string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Name  string    `gorm:"type:varchar(255);not null" json:"name"`
	// Password is nil for accounts created through identity federation
	// that never set a local password.
	Password *string `gorm:"type:text" json:"-"`

	Role    Role `gorm:"type:varchar(20);not null;index" json:"role"`
	IsAdmin bool `gorm:"default:false" json:"is_admin"`

	// Status is meaningful only for role=doctor. IsApproved mirrors
	// status == APPROVED and is always written together with it.
	Status     ApprovalStatus `gorm:"type:varchar(20);index" json:"status,omitempty"`
	IsApproved bool           `gorm:"default:false" json:"is_approved"`

	Phone           string `gorm:"type:varchar(30)" json:"phone,omitempty"`
	Specialization  string `gorm:"type:varchar(255)" json:"specialization,omitempty"`
	ExperienceYears int    `json:"experience_years,omitempty"`
	Bio             string `gorm:"type:text" json:"bio,omitempty"`
	AvatarURL       string `gorm:"type:varchar(500)" json:"avatar_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (User) TableName() string {
	return "users"
}

// BeforeCreate hook
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// HasLocalPassword reports whether the account can authenticate with
// email + password.
func (u *User) HasLocalPassword() bool {
	return u.Password != nil && *u.Password != ""
}

// FederatedProfile is the minimal projection returned by federated login.
type FederatedProfile struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// RegisterRequest is the body for local registration
type RegisterRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Phone          string `json:"phone,omitempty"`
	Specialization string `json:"specialization,omitempty"`
}

// LoginRequest is the body for local login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// GoogleLoginRequest carries the provider-issued ID token
type GoogleLoginRequest struct {
	Token string `json:"token"`
}

// ForgotPasswordRequest is the body for recovery initiation
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body for recovery completion
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// SetStatusRequest is the body for admin moderation
type SetStatusRequest struct {
	Status string `json:"status"`
}
