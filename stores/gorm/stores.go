//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/panyam/authkit"
)

// Open connects to a database by driver name ("postgres" or "sqlite").
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported gorm driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	return db, nil
}

// AutoMigrate runs database migrations for the users table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&UserModel{})
}

// UserStore implements authkit.UserStore using GORM
type UserStore struct {
	db *gorm.DB
}

func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) FindUserByID(ctx context.Context, id string) (*authkit.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) FindUserByEmail(ctx context.Context, email string) (*authkit.User, error) {
	return s.first(ctx, "email = ?", authkit.NormalizeEmail(email))
}

func (s *UserStore) FindUserByProviderID(ctx context.Context, provider, providerID string) (*authkit.User, error) {
	if providerID == "" {
		return nil, authkit.ErrNotFound
	}
	return s.first(ctx, "provider = ? AND provider_id = ?", provider, providerID)
}

func (s *UserStore) FindUserByResetToken(ctx context.Context, tokenHash string) (*authkit.User, error) {
	if tokenHash == "" {
		return nil, authkit.ErrNotFound
	}
	return s.first(ctx, "reset_password_token = ?", tokenHash)
}

func (s *UserStore) CreateUser(ctx context.Context, user *authkit.User) (*authkit.User, error) {
	u := user.Clone()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	authkit.PrepareNewUser(u, time.Now())
	model := UserToModel(u)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, model); err != nil {
			return err
		}
		return tx.Create(model).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return model.ToUser(), nil
}

func (s *UserStore) UpdateUser(ctx context.Context, id string, update authkit.UserUpdate) (*authkit.User, error) {
	var model *UserModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing UserModel
		if err := tx.First(&existing, "id = ?", id).Error; err != nil {
			return err
		}
		u := existing.ToUser()
		update.Apply(u, time.Now())
		model = UserToModel(u)
		if err := checkUnique(tx, model); err != nil {
			return err
		}
		return tx.Save(model).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return model.ToUser(), nil
}

func (s *UserStore) first(ctx context.Context, query string, args ...any) (*authkit.User, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		return nil, translate(err)
	}
	return model.ToUser(), nil
}

// checkUnique reports conflicts up front so callers get ErrDuplicate even
// when the dialect does not translate constraint violations.
func checkUnique(tx *gorm.DB, m *UserModel) error {
	var count int64
	if err := tx.Model(&UserModel{}).Where("email = ? AND id <> ?", m.Email, m.ID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("email %q: %w", m.Email, authkit.ErrDuplicate)
	}
	if m.ProviderID == nil {
		return nil
	}
	if err := tx.Model(&UserModel{}).
		Where("provider = ? AND provider_id = ? AND id <> ?", m.Provider, *m.ProviderID, m.ID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%s account %q: %w", m.Provider, *m.ProviderID, authkit.ErrDuplicate)
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authkit.ErrDuplicate), errors.Is(err, authkit.ErrNotFound):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", authkit.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", authkit.ErrDuplicate, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key") {
		return fmt.Errorf("%w: %v", authkit.ErrDuplicate, err)
	}
	return err
}
