//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	"github.com/panyam/authkit"
)

// UserEntity is the Datastore entity for users
type UserEntity struct {
	Key                  *datastore.Key `datastore:"__key__"`
	Email                string         `datastore:"email"`
	Password             string         `datastore:"password,noindex"`
	Name                 string         `datastore:"name,noindex"`
	Role                 string         `datastore:"role"`
	Provider             string         `datastore:"provider"`
	ProviderID           string         `datastore:"provider_id"`
	ResetPasswordToken   string         `datastore:"reset_password_token"`
	ResetPasswordExpires time.Time      `datastore:"reset_password_expires,noindex"`
	CreatedAt            time.Time      `datastore:"created_at"`
	UpdatedAt            time.Time      `datastore:"updated_at"`
	Version              int            `datastore:"version"`
}

func (e *UserEntity) ToUser() *authkit.User {
	u := &authkit.User{
		ID:                 e.Key.Name,
		Email:              e.Email,
		Password:           e.Password,
		Name:               e.Name,
		Role:               e.Role,
		Provider:           e.Provider,
		ProviderID:         e.ProviderID,
		ResetPasswordToken: e.ResetPasswordToken,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
	if !e.ResetPasswordExpires.IsZero() {
		t := e.ResetPasswordExpires
		u.ResetPasswordExpires = &t
	}
	return u
}

func UserToEntity(u *authkit.User, key *datastore.Key, version int) *UserEntity {
	e := &UserEntity{
		Key:                key,
		Email:              u.Email,
		Password:           u.Password,
		Name:               u.Name,
		Role:               u.Role,
		Provider:           u.Provider,
		ProviderID:         u.ProviderID,
		ResetPasswordToken: u.ResetPasswordToken,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
		Version:            version,
	}
	if u.ResetPasswordExpires != nil {
		e.ResetPasswordExpires = *u.ResetPasswordExpires
	}
	return e
}

// MarkerEntity reserves a unique value (email or provider account) for a user.
type MarkerEntity struct {
	UserID    string    `datastore:"user_id"`
	CreatedAt time.Time `datastore:"created_at,noindex"`
}
