package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the per-device refresh-token record. The unique index on
// (user_id, device_id) is what guarantees at most one live refresh
// token per device: issuing a new one upserts over the old row.
type Session struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sessions_user_device" json:"user_id"`
	DeviceID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_sessions_user_device" json:"device_id"`
	DeviceName string    `gorm:"size:255" json:"device_name"`
	IssuingIP  string    `gorm:"size:45" json:"issuing_ip"`
	TokenHash  string    `gorm:"size:64;not null;index" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `gorm:"not null" json:"expires_at"`
}
