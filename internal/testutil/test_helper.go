package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aledz7/df-graficas-sub017/internal/config"
	"github.com/aledz7/df-graficas-sub017/internal/middleware"
	"github.com/aledz7/df-graficas-sub017/internal/models"
	"github.com/aledz7/df-graficas-sub017/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

// NewDB opens a migrated SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.InitDB(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "chat.db"),
	})
	if err != nil {
		t.Fatalf("InitDB() error = %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts an active user with a fixed id.
func CreateUser(t *testing.T, db *gorm.DB, tenantID, id uint, name string) *models.User {
	t.Helper()
	user := &models.User{
		ID:          id,
		TenantID:    tenantID,
		DisplayName: name,
		IsActive:    true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user %d: %v", id, err)
	}
	return user
}

// AccessToken signs a token the way the identity provider does.
func AccessToken(t *testing.T, secret string, tenantID, userID uint, role string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
