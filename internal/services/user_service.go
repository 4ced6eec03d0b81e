package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/avdeevsm/blogger-backend/internal/config"
	"github.com/avdeevsm/blogger-backend/internal/mailer"
	"github.com/avdeevsm/blogger-backend/internal/models"
	"github.com/avdeevsm/blogger-backend/internal/sessions"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrLoginTaken    = errors.New("login already registered")
	ErrEmailTaken    = errors.New("email already registered")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCodeInvalid   = errors.New("code is invalid or expired")
	ErrEmailNotFound = errors.New("email not registered or already confirmed")
)

var (
	loginPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,10}$`)
	emailPattern = regexp.MustCompile(`^[\w.+-]+@[\w-]+\.[\w.-]+$`)
)

// UserService handles registration, email confirmation and password
// recovery.
type UserService struct {
	db       *gorm.DB
	cfg      *config.Config
	sessions *sessions.Store
	mailer   mailer.Mailer
}

func NewUserService(db *gorm.DB, cfg *config.Config, sessionStore *sessions.Store, m mailer.Mailer) *UserService {
	return &UserService{db: db, cfg: cfg, sessions: sessionStore, mailer: m}
}

// Register creates an unconfirmed user and triggers the confirmation
// mail. Mail delivery failure is logged, not surfaced: the code can be
// re-sent.
func (s *UserService) Register(ctx context.Context, login, email, password string) error {
	if !loginPattern.MatchString(login) || !emailPattern.MatchString(email) ||
		len(password) < 6 || len(password) > 20 {
		return ErrInvalidInput
	}

	var existing models.User
	if err := s.db.WithContext(ctx).Where("login = ?", login).First(&existing).Error; err == nil {
		return ErrLoginTaken
	}
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	code := uuid.NewString()
	expires := time.Now().Add(s.cfg.ConfirmationCodeTTL)
	user := models.User{
		ID:                    uuid.New(),
		Login:                 login,
		Email:                 email,
		PasswordHash:          string(hash),
		ConfirmationCode:      &code,
		ConfirmationExpiresAt: &expires,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	if err := s.mailer.SendConfirmationCode(ctx, email, code); err != nil {
		slog.Error("confirmation mail failed", "error", err, "user_id", user.ID.String())
	}
	return nil
}

// ConfirmRegistration marks the account confirmed when the code
// matches, is unexpired, and the account is not confirmed yet.
func (s *UserService) ConfirmRegistration(ctx context.Context, code string) error {
	var user models.User
	err := s.db.WithContext(ctx).Where("confirmation_code = ?", code).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeInvalid
		}
		return fmt.Errorf("user lookup: %w", err)
	}

	if user.EmailConfirmed {
		return ErrCodeInvalid
	}
	if user.ConfirmationExpiresAt == nil || time.Now().After(*user.ConfirmationExpiresAt) {
		return ErrCodeInvalid
	}

	return s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"email_confirmed":         true,
		"confirmation_code":       nil,
		"confirmation_expires_at": nil,
	}).Error
}

// ResendConfirmation issues a fresh code for an unconfirmed account.
func (s *UserService) ResendConfirmation(ctx context.Context, email string) error {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEmailNotFound
		}
		return fmt.Errorf("user lookup: %w", err)
	}
	if user.EmailConfirmed {
		return ErrEmailNotFound
	}

	code := uuid.NewString()
	expires := time.Now().Add(s.cfg.ConfirmationCodeTTL)
	err = s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"confirmation_code":       code,
		"confirmation_expires_at": expires,
	}).Error
	if err != nil {
		return fmt.Errorf("update confirmation code: %w", err)
	}

	if err := s.mailer.SendConfirmationCode(ctx, email, code); err != nil {
		slog.Error("confirmation mail failed", "error", err, "user_id", user.ID.String())
	}
	return nil
}

// RecoverPassword stores a recovery code and triggers the mail. An
// unknown email succeeds silently so the endpoint is not an
// account-existence oracle.
func (s *UserService) RecoverPassword(ctx context.Context, email string) error {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("user lookup: %w", err)
	}

	code := uuid.NewString()
	expires := time.Now().Add(s.cfg.RecoveryCodeTTL)
	err = s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"recovery_code":       code,
		"recovery_expires_at": expires,
	}).Error
	if err != nil {
		return fmt.Errorf("update recovery code: %w", err)
	}

	if err := s.mailer.SendRecoveryCode(ctx, email, code); err != nil {
		slog.Error("recovery mail failed", "error", err, "user_id", user.ID.String())
	}
	return nil
}

// SetNewPassword replaces the password for a valid recovery code and
// logs the user out of every device.
func (s *UserService) SetNewPassword(ctx context.Context, recoveryCode, newPassword string) error {
	if len(newPassword) < 6 || len(newPassword) > 20 {
		return ErrInvalidInput
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("recovery_code = ?", recoveryCode).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCodeInvalid
		}
		return fmt.Errorf("user lookup: %w", err)
	}
	if user.RecoveryExpiresAt == nil || time.Now().After(*user.RecoveryExpiresAt) {
		return ErrCodeInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"password_hash":       string(hash),
		"recovery_code":       nil,
		"recovery_expires_at": nil,
	}).Error
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return s.sessions.ClearAllForUser(ctx, user.ID)
}
