package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User holds account data plus the email-confirmation and
// password-recovery code state.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Login        string    `gorm:"size:30;not null;uniqueIndex" json:"login"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`

	EmailConfirmed        bool       `gorm:"default:false" json:"-"`
	ConfirmationCode      *string    `gorm:"size:36;index" json:"-"`
	ConfirmationExpiresAt *time.Time `json:"-"`

	RecoveryCode      *string    `gorm:"size:36;index" json:"-"`
	RecoveryExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
