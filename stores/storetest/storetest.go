// Package storetest holds behavior tests shared by every authkit.UserStore
// implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/panyam/authkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) authkit.UserStore

// Run exercises a UserStore implementation.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s authkit.UserStore)
	}{
		{"CreateAssignsDefaults", testCreateAssignsDefaults},
		{"FindByIDAndEmail", testFindByIDAndEmail},
		{"FindByProviderID", testFindByProviderID},
		{"DuplicateEmail", testDuplicateEmail},
		{"DuplicateProviderID", testDuplicateProviderID},
		{"NotFound", testNotFound},
		{"UpdatePartial", testUpdatePartial},
		{"ResetTokenLifecycle", testResetTokenLifecycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func testCreateAssignsDefaults(t *testing.T, s authkit.UserStore) {
	ctx := context.Background()
	u, err := s.CreateUser(ctx, &authkit.User{Email: "  Alice@Example.com ", Password: "hash", Name: "Alice"})
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, authkit.RoleUser, u.Role)
	assert.Equal(t, authkit.ProviderLocal, u.Provider)
	assert.False(t, u.CreatedAt.IsZero())
	assert.False(t, u.UpdatedAt.IsZero())
}

func testFindByIDAndEmail(t *testing.T, s authkit.UserStore) {
	ctx := context.Background()
	created, err := s.CreateUser(ctx, &authkit.User{Email: "bob@example.com", Password: "hash", Name: "Bob"})
	require.NoError(t, err)

	byID, err := s.FindUserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", byID.Email)
	assert.Equal(t, "hash", byID.Password)
	assert.Equal(t, "Bob", byID.Name)

	byEmail, err := s.FindUserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)
}

func testFindByProviderID(t *testing.T, s authkit.UserStore) {
	ctx := context.Background()
	created, err := s.CreateUser(ctx, &authkit.User{
		Email:      "gh@example.com",
		Provider:   authkit.ProviderGitHub,
		ProviderID: "12345",
	})
	require.NoError(t, err)

	found, err := s.FindUserByProviderID(ctx, authkit.ProviderGitHub, "12345")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.False(t, found.HasPassword())

	_, err = s.FindUserByProviderID(ctx, authkit.ProviderGoogle, "12345")
	assert.ErrorIs(t, err, authkit.ErrNotFound)
}

func testDuplicateEmail(t *testing.T, s authkit.UserStore) {
	ctx := context.Background()
	_, err := s.CreateUser(ctx, &authkit.User{Email: "dup@example.com"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, &authkit.User{Email: "DUP@example.com"})
	assert.ErrorIs(t, err, authkit.ErrDuplicate)
}

func testDuplicateProviderID(t *testing.T, s authkit.UserStore) {
	ctx := context.Background()
	_, err := s.CreateUser(ctx, &authkit.User{Email: "a@example.com", Provider: authkit.ProviderGoogle, ProviderID: "g-1"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, &authkit.User{Email: "b@example.com", Provider: authkit.ProviderGoogle, ProviderID: "g-1"})
	assert.ErrorIs(t, err, authkit.ErrDuplicate)

	// Local users without a provider id never collide with each other.
	_, err = s.CreateUser(ctx, &authkit.User{Email: "c@example.com"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, &authkit.User{Email: "d@example.com"})
	require.NoError(t, err)
}

func testNotFound(t *testing.T, s authkit.UserStore) {
	ctx := context.Background()
	_, err := s.FindUserByID(ctx, "missing")
	assert.ErrorIs(t, err, authkit.ErrNotFound)

	_, err = s.FindUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, authkit.ErrNotFound)

	_, err = s.FindUserByResetToken(ctx, "deadbeef")
	assert.ErrorIs(t, err, authkit.ErrNotFound)

	_, err = s.UpdateUser(ctx, "missing", authkit.UserUpdate{Name: authkit.Ptr("x")})
	assert.ErrorIs(t, err, authkit.ErrNotFound)
}

func testUpdatePartial(t *testing.T, s authkit.UserStore) {
	ctx := context.Background()
	created, err := s.CreateUser(ctx, &authkit.User{Email: "carol@example.com", Password: "hash", Name: "Carol"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	updated, err := s.UpdateUser(ctx, created.ID, authkit.UserUpdate{
		Provider:   authkit.Ptr(authkit.ProviderFacebook),
		ProviderID: authkit.Ptr("fb-9"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Carol", updated.Name)
	assert.Equal(t, "hash", updated.Password)
	assert.Equal(t, authkit.ProviderFacebook, updated.Provider)
	assert.Equal(t, "fb-9", updated.ProviderID)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt), "UpdatedAt must move forward")

	reloaded, err := s.FindUserByProviderID(ctx, authkit.ProviderFacebook, "fb-9")
	require.NoError(t, err)
	assert.Equal(t, created.ID, reloaded.ID)
}

func testResetTokenLifecycle(t *testing.T, s authkit.UserStore) {
	ctx := context.Background()
	created, err := s.CreateUser(ctx, &authkit.User{Email: "dave@example.com", Password: "hash"})
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour)
	_, err = s.UpdateUser(ctx, created.ID, authkit.UserUpdate{
		ResetPasswordToken:   authkit.Ptr("tokenhash"),
		ResetPasswordExpires: &expires,
	})
	require.NoError(t, err)

	found, err := s.FindUserByResetToken(ctx, "tokenhash")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	require.NotNil(t, found.ResetPasswordExpires)
	assert.WithinDuration(t, expires, *found.ResetPasswordExpires, time.Second)

	cleared, err := s.UpdateUser(ctx, created.ID, authkit.UserUpdate{
		Password:        authkit.Ptr("newhash"),
		ClearResetToken: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "newhash", cleared.Password)
	assert.Empty(t, cleared.ResetPasswordToken)
	assert.Nil(t, cleared.ResetPasswordExpires)

	_, err = s.FindUserByResetToken(ctx, "tokenhash")
	assert.ErrorIs(t, err, authkit.ErrNotFound)
}
