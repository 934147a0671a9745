package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Preference holds per-account settings. A default row is created for
// every account at registration, local or federated.
type Preference struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`

	EmailNotifications bool   `gorm:"default:true" json:"email_notifications"`
	SMSNotifications   bool   `gorm:"default:false" json:"sms_notifications"`
	Language           string `gorm:"type:varchar(10);default:'en'" json:"language"`
	Timezone           string `gorm:"type:varchar(50);default:'UTC'" json:"timezone"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the table name
func (Preference) TableName() string {
	return "preferences"
}

// BeforeCreate hook
func (p *Preference) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// DefaultPreference returns the preference row created for new accounts
func DefaultPreference(userID uuid.UUID) *Preference {
	return &Preference{
		UserID:             userID,
		EmailNotifications: true,
		SMSNotifications:   false,
		Language:           "en",
		Timezone:           "UTC",
	}
}
