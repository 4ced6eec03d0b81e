package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/avdeevsm/blogger-backend/internal/blacklist"
	"github.com/avdeevsm/blogger-backend/internal/config"
	"github.com/avdeevsm/blogger-backend/internal/dto"
	"github.com/avdeevsm/blogger-backend/internal/models"
	"github.com/avdeevsm/blogger-backend/internal/sessions"
	"github.com/avdeevsm/blogger-backend/internal/token"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ErrUnauthorized covers every credential and token validation
// failure. Deliberately coarse: callers never learn which check
// failed.
var ErrUnauthorized = errors.New("unauthorized")

type AuthService struct {
	db        *gorm.DB
	cfg       *config.Config
	codec     *token.Codec
	sessions  *sessions.Store
	blacklist *blacklist.Store
}

func NewAuthService(db *gorm.DB, cfg *config.Config, codec *token.Codec, sessionStore *sessions.Store, blacklistStore *blacklist.Store) *AuthService {
	return &AuthService{
		db:        db,
		cfg:       cfg,
		codec:     codec,
		sessions:  sessionStore,
		blacklist: blacklistStore,
	}
}

// Login authenticates by login or email (indexed exact match) and
// issues a token pair for a freshly allocated device slot.
func (s *AuthService) Login(ctx context.Context, loginOrEmail, password, deviceName, ip string) (*dto.TokenPair, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Where("login = ? OR email = ?", loginOrEmail, loginOrEmail).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrUnauthorized
	}
	if !user.EmailConfirmed {
		return nil, ErrUnauthorized
	}

	deviceID := s.sessions.AllocateDeviceID()
	return s.issuePair(ctx, &user, deviceID, deviceName, ip)
}

// Refresh rotates the token pair. The presented token is revoked
// before the new pair is issued, so a downstream failure can never
// leave the old token usable, and of two concurrent calls with the
// same token exactly one wins the SETNX and proceeds.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceName, ip string) (*dto.TokenPair, error) {
	claims, err := s.validateRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	userID, deviceID, err := subjectAndDevice(claims)
	if err != nil {
		return nil, ErrUnauthorized
	}

	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	first, err := s.blacklist.RecordOnce(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if !first {
		// Lost the rotation race; the token is already burned.
		return nil, ErrUnauthorized
	}

	return s.issuePair(ctx, user, deviceID, deviceName, ip)
}

// Logout revokes the presented token and drops the device session.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.validateRefreshToken(ctx, refreshToken)
	if err != nil {
		return err
	}

	userID, deviceID, err := subjectAndDevice(claims)
	if err != nil {
		return ErrUnauthorized
	}

	if err := s.blacklist.Record(ctx, refreshToken); err != nil {
		return err
	}
	return s.sessions.Clear(ctx, userID, deviceID)
}

// CurrentUser resolves the bearer subject for the profile endpoint.
func (s *AuthService) CurrentUser(ctx context.Context, subject string) (*models.User, error) {
	userID, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrUnauthorized
	}
	return s.userByID(ctx, userID)
}

// validateRefreshToken runs the full check set: presence, signature,
// revocation, expiry, required claims. Every failure collapses to
// ErrUnauthorized.
func (s *AuthService) validateRefreshToken(ctx context.Context, refreshToken string) (jwt.MapClaims, error) {
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}

	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}

	revoked, err := s.blacklist.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrUnauthorized
	}

	if s.codec.IsExpired(claims) {
		return nil, ErrUnauthorized
	}
	if !token.HasRequiredClaims(claims, token.RefreshClaims) {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// issuePair signs a fresh access/refresh pair and upserts the device
// session, superseding any prior refresh token for the device.
func (s *AuthService) issuePair(ctx context.Context, user *models.User, deviceID uuid.UUID, deviceName, ip string) (*dto.TokenPair, error) {
	accessToken, err := s.codec.Issue(jwt.MapClaims{
		"sub":          user.ID.String(),
		"loginOrEmail": user.Login,
	}, s.cfg.JWTAccessExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, err := s.codec.Issue(jwt.MapClaims{
		"sub":      user.ID.String(),
		"deviceId": deviceID.String(),
	}, s.cfg.JWTRefreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	now := time.Now()
	err = s.sessions.Upsert(ctx, &models.Session{
		UserID:     user.ID,
		DeviceID:   deviceID,
		DeviceName: deviceName,
		IssuingIP:  ip,
		TokenHash:  hashToken(refreshToken),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.JWTRefreshExpiry),
	})
	if err != nil {
		return nil, err
	}

	return &dto.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *AuthService) userByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// User deleted between issuance and use.
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	return &user, nil
}

func subjectAndDevice(claims jwt.MapClaims) (uuid.UUID, uuid.UUID, error) {
	userID, err := uuid.Parse(token.StringClaim(claims, "sub"))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	deviceID, err := uuid.Parse(token.StringClaim(claims, "deviceId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, deviceID, nil
}

func hashToken(tokenValue string) string {
	h := sha256.Sum256([]byte(tokenValue))
	return fmt.Sprintf("%x", h)
}
