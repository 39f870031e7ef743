package authkit

import (
	"context"
	"strings"
	"time"
)

// Roles assigned to users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Providers a user account can be bound to.
const (
	ProviderLocal    = "local"
	ProviderGitHub   = "github"
	ProviderGoogle   = "google"
	ProviderFacebook = "facebook"
)

// KnownProvider reports whether p is a provider HandleOAuthUser accepts.
func KnownProvider(p string) bool {
	switch p {
	case ProviderGitHub, ProviderGoogle, ProviderFacebook:
		return true
	}
	return false
}

// User is a stored account.
//
// Password holds the bcrypt hash and is empty for accounts created through an
// OAuth provider. ResetPasswordToken holds the SHA-256 hex of the reset token
// mailed to the user, never the token itself.
type User struct {
	ID                   string     `json:"id"`
	Email                string     `json:"email"`
	Password             string     `json:"-"`
	Name                 string     `json:"name"`
	Role                 string     `json:"role"`
	Provider             string     `json:"provider"`
	ProviderID           string     `json:"providerId,omitempty"`
	ResetPasswordToken   string     `json:"-"`
	ResetPasswordExpires *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool { return u.Password != "" }

// Public returns the sanitized view of u.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		Provider:   u.Provider,
		ProviderID: u.ProviderID,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.ResetPasswordExpires != nil {
		t := *u.ResetPasswordExpires
		out.ResetPasswordExpires = &t
	}
	return &out
}

// PublicUser is what API responses expose about a user.
type PublicUser struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Provider   string    `json:"provider"`
	ProviderID string    `json:"providerId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserUpdate is a partial update. Nil fields are left untouched.
// ClearResetToken removes both the reset token and its expiry and wins over
// ResetPasswordToken/ResetPasswordExpires.
type UserUpdate struct {
	Email                *string
	Password             *string
	Name                 *string
	Role                 *string
	Provider             *string
	ProviderID           *string
	ResetPasswordToken   *string
	ResetPasswordExpires *time.Time
	ClearResetToken      bool
}

// Apply writes the update onto u and stamps UpdatedAt with now. Stores that
// keep whole records use it so every backend applies updates the same way.
func (upd UserUpdate) Apply(u *User, now time.Time) {
	if upd.Email != nil {
		u.Email = NormalizeEmail(*upd.Email)
	}
	if upd.Password != nil {
		u.Password = *upd.Password
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Provider != nil {
		u.Provider = *upd.Provider
	}
	if upd.ProviderID != nil {
		u.ProviderID = *upd.ProviderID
	}
	if upd.ResetPasswordToken != nil {
		u.ResetPasswordToken = *upd.ResetPasswordToken
	}
	if upd.ResetPasswordExpires != nil {
		t := *upd.ResetPasswordExpires
		u.ResetPasswordExpires = &t
	}
	if upd.ClearResetToken {
		u.ResetPasswordToken = ""
		u.ResetPasswordExpires = nil
	}
	u.UpdatedAt = now
}

// UserStore persists users.
//
// Lookups that match nothing return an error wrapping ErrNotFound. CreateUser
// and UpdateUser return an error wrapping ErrDuplicate when the email or the
// (provider, providerID) pair is already taken by another user.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByProviderID(ctx context.Context, provider, providerID string) (*User, error)

	// FindUserByResetToken looks a user up by the hashed reset token.
	FindUserByResetToken(ctx context.Context, tokenHash string) (*User, error)

	// CreateUser assigns the ID (when empty), timestamps and the default role.
	CreateUser(ctx context.Context, user *User) (*User, error)

	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)
}

// PrepareNewUser fills the defaults a store applies on create.
func PrepareNewUser(u *User, now time.Time) {
	u.Email = NormalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Provider == "" {
		u.Provider = ProviderLocal
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Ptr returns a pointer to v. Handy for building UserUpdates.
func Ptr[T any](v T) *T { return &v }
