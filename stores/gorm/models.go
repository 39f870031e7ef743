//go:build !wasm
// +build !wasm

package gorm

import (
	"time"

	"github.com/panyam/authkit"
)

// UserModel is the GORM model for users
type UserModel struct {
	ID                   string  `gorm:"primaryKey;size:64"`
	Email                string  `gorm:"size:255;not null;uniqueIndex"`
	Password             string  `gorm:"size:255"`
	Name                 string  `gorm:"size:255"`
	Role                 string  `gorm:"size:32;default:user"`
	Provider             string  `gorm:"size:32;default:local;uniqueIndex:idx_users_provider_account"`
	ProviderID           *string `gorm:"size:255;uniqueIndex:idx_users_provider_account"`
	ResetPasswordToken   *string `gorm:"size:64;index"`
	ResetPasswordExpires *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *authkit.User {
	u := &authkit.User{
		ID:        m.ID,
		Email:     m.Email,
		Password:  m.Password,
		Name:      m.Name,
		Role:      m.Role,
		Provider:  m.Provider,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.ProviderID != nil {
		u.ProviderID = *m.ProviderID
	}
	if m.ResetPasswordToken != nil {
		u.ResetPasswordToken = *m.ResetPasswordToken
	}
	if m.ResetPasswordExpires != nil {
		t := *m.ResetPasswordExpires
		u.ResetPasswordExpires = &t
	}
	return u
}

func UserToModel(u *authkit.User) *UserModel {
	m := &UserModel{
		ID:                   u.ID,
		Email:                u.Email,
		Password:             u.Password,
		Name:                 u.Name,
		Role:                 u.Role,
		Provider:             u.Provider,
		ProviderID:           nullable(u.ProviderID),
		ResetPasswordToken:   nullable(u.ResetPasswordToken),
		ResetPasswordExpires: u.ResetPasswordExpires,
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
	return m
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
