// Package sessions persists the per-device refresh-token records.
package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/avdeevsm/blogger-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AllocateDeviceID returns a device identifier for a fresh login.
// Every login gets a new slot; UUIDs cannot collide across a user's
// devices.
func (s *Store) AllocateDeviceID() uuid.UUID {
	return uuid.New()
}

// Upsert writes the session, replacing any prior row for the same
// (user, device) pair in one statement. This is the atomic
// session-replace step of token rotation.
func (s *Store) Upsert(ctx context.Context, sess *models.Session) error {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"device_name", "issuing_ip", "token_hash", "created_at", "expires_at",
		}),
	}).Create(sess).Error
	if err != nil {
		return fmt.Errorf("session upsert: %w", err)
	}
	return nil
}

// Find returns the session for (user, device), or nil when absent.
func (s *Store) Find(ctx context.Context, userID, deviceID uuid.UUID) (*models.Session, error) {
	var sess models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup: %w", err)
	}
	return &sess, nil
}

// Clear removes the session for (user, device). Removing an absent
// session is not an error.
func (s *Store) Clear(ctx context.Context, userID, deviceID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Delete(&models.Session{}).Error
	if err != nil {
		return fmt.Errorf("session clear: %w", err)
	}
	return nil
}

// ClearAllForUser removes every session of the user, logging out all
// devices. Used after a password reset.
func (s *Store) ClearAllForUser(ctx context.Context, userID uuid.UUID) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.Session{}).Error
	if err != nil {
		return fmt.Errorf("session clear all: %w", err)
	}
	return nil
}
