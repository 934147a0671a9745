package models

import (
	"time"
)

// ResetToken is a single-use password recovery token. A token is valid
// iff a row exists and expires_at is in the future; redemption deletes
// the row, so a consumed token cannot be told apart from one that never
// existed.
type ResetToken struct {
	Token     string    `gorm:"type:char(64);primaryKey" json:"-"`
	Email     string    `gorm:"type:varchar(255);not null;index" json:"email"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the table name
func (ResetToken) TableName() string {
	return "reset_tokens"
}

// IsExpired reports whether the token is past its expiry
func (t *ResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
