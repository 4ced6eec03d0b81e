package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/avdeevsm/blogger-backend/internal/blacklist"
	"github.com/avdeevsm/blogger-backend/internal/config"
	"github.com/avdeevsm/blogger-backend/internal/models"
	"github.com/avdeevsm/blogger-backend/internal/sessions"
	"github.com/avdeevsm/blogger-backend/internal/token"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	auth      *AuthService
	users     *UserService
	db        *gorm.DB
	cfg       *config.Config
	codec     *token.Codec
	sessions  *sessions.Store
	blacklist *blacklist.Store
	mail      *recordingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql.DB failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &models.Session{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		JWTSecret:           "test-secret",
		JWTAccessExpiry:     time.Minute,
		JWTRefreshExpiry:    time.Hour,
		ConfirmationCodeTTL: time.Hour,
		RecoveryCodeTTL:     time.Hour,
	}

	codec := token.NewCodec(cfg.JWTSecret)
	sessionStore := sessions.NewStore(db)
	blacklistStore := blacklist.NewStore(rdb)
	mail := &recordingMailer{}

	return &testEnv{
		auth:      NewAuthService(db, cfg, codec, sessionStore, blacklistStore),
		users:     NewUserService(db, cfg, sessionStore, mail),
		db:        db,
		cfg:       cfg,
		codec:     codec,
		sessions:  sessionStore,
		blacklist: blacklistStore,
		mail:      mail,
	}
}

func (e *testEnv) createConfirmedUser(t *testing.T, login, email, password string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	user := &models.User{
		ID:             uuid.New(),
		Login:          login,
		Email:          email,
		PasswordHash:   string(hash),
		EmailConfirmed: true,
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func (e *testEnv) sessionCount(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&models.Session{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return n
}

func (e *testEnv) reloadUser(t *testing.T, userID uuid.UUID) *models.User {
	t.Helper()
	var user models.User
	if err := e.db.First(&user, "id = ?", userID).Error; err != nil {
		t.Fatalf("reload user failed: %v", err)
	}
	return &user
}

// recordingMailer captures the codes the flows trigger.
type recordingMailer struct {
	mu            sync.Mutex
	confirmations int
	recoveries    int
}

func (m *recordingMailer) SendConfirmationCode(_ context.Context, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmations++
	return nil
}

func (m *recordingMailer) SendRecoveryCode(_ context.Context, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveries++
	return nil
}

func (m *recordingMailer) sent() (confirmations, recoveries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmations, m.recoveries
}
