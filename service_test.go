package authkit_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/stores/memory"
)

func TestNewAuthServiceRequiresDependencies(t *testing.T) {
	_, err := authkit.NewAuthService(authkit.Options{})
	assert.Error(t, err)

	_, err = authkit.NewAuthService(authkit.Options{Store: memory.New()})
	assert.Error(t, err)

	_, err = authkit.NewAuthService(authkit.Options{
		Store:  memory.New(),
		Tokens: &authkit.TokenIssuer{AccessSecret: "a"},
	})
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	resp, err := env.service.Register(ctx, "  Alice@Example.COM ", "password123", "Alice")
	require.NoError(t, err)
	require.NotNil(t, resp.User)
	require.NotNil(t, resp.Tokens)

	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Equal(t, "Alice", resp.User.Name)
	assert.Equal(t, authkit.RoleUser, resp.User.Role)
	assert.Equal(t, authkit.ProviderLocal, resp.User.Provider)
	assert.NotEmpty(t, resp.Tokens.AccessToken)
	assert.NotEmpty(t, resp.Tokens.RefreshToken)

	stored, err := env.store.FindUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", stored.Password, "password must be hashed")
	ok, err := authkit.ComparePassword(stored.Password, "password123")
	require.NoError(t, err)
	assert.True(t, ok)

	claims, err := env.service.ValidateToken(resp.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, claims.UserID)
	assert.Equal(t, authkit.RoleUser, claims.Role)
}

func TestRegisterValidation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"missing email", "", "password123"},
		{"missing password", "bob@example.com", ""},
		{"bad email", "not-an-email", "password123"},
		{"short password", "bob@example.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Register(ctx, tt.email, tt.password, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, authkit.ErrValidation)
			ae, ok := authkit.AsAuthError(err)
			require.True(t, ok)
			assert.Equal(t, 400, ae.Status)
		})
	}
	assert.Equal(t, 0, env.store.Len())
}

func TestRegisterPasswordByteLimit(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	longest := strings.Repeat("x", authkit.MaxPasswordBytes)
	resp, err := env.service.Register(ctx, "max@example.com", longest, "Max")
	require.NoError(t, err)
	assert.Equal(t, "max@example.com", resp.User.Email)

	_, err = env.service.Login(ctx, "max@example.com", longest)
	require.NoError(t, err)

	_, err = env.service.Register(ctx, "over@example.com", longest+"x", "Over")
	require.Error(t, err)
	assert.ErrorIs(t, err, authkit.ErrValidation)
	ae, ok := authkit.AsAuthError(err)
	require.True(t, ok)
	assert.Equal(t, 400, ae.Status)
	assert.Contains(t, ae.Message, "72 bytes")
	assert.Equal(t, 1, env.store.Len())
}

func TestRegisterDuplicate(t *testing.T) {
	env := setupTestEnv(t)
	env.register(t, "dup@example.com", "password123")

	_, err := env.service.Register(context.Background(), "DUP@example.com", "password456", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, authkit.ErrUserExists)
	ae, _ := authkit.AsAuthError(err)
	assert.Equal(t, 409, ae.Status)
	assert.Equal(t, "User already exists", ae.Message)
}

func TestLogin(t *testing.T) {
	env := setupTestEnv(t)
	registered := env.register(t, "carol@example.com", "password123")
	ctx := context.Background()

	resp, err := env.service.Login(ctx, "Carol@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, resp.User.ID)
	assert.NotEmpty(t, resp.Tokens.AccessToken)

	_, err = env.service.Login(ctx, "carol@example.com", "wrong-password")
	assert.ErrorIs(t, err, authkit.ErrInvalidCredentials)

	_, err = env.service.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, authkit.ErrInvalidCredentials)
}

func TestLoginOAuthOnlyAccount(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	_, err := env.service.HandleOAuthUser(ctx, authkit.OAuthIdentity{
		Email: "gh@example.com", Name: "GH", Provider: authkit.ProviderGitHub, ProviderID: "42",
	})
	require.NoError(t, err)

	_, err = env.service.Login(ctx, "gh@example.com", "password123")
	require.Error(t, err)
	assert.ErrorIs(t, err, authkit.ErrDifferentLoginMethod)
	ae, _ := authkit.AsAuthError(err)
	assert.Equal(t, 401, ae.Status)
	assert.Equal(t, "Account exists with different login method", ae.Message)
}

func TestCurrentUser(t *testing.T) {
	env := setupTestEnv(t)
	resp := env.register(t, "dave@example.com", "password123")
	ctx := context.Background()

	user, err := env.service.CurrentUser(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "dave@example.com", user.Email)

	_, err = env.service.CurrentUser(ctx, "missing")
	assert.ErrorIs(t, err, authkit.ErrUnauthorized)
}

func TestRefreshTokenRotation(t *testing.T) {
	env := setupTestEnv(t)
	first := env.register(t, "erin@example.com", "password123")
	ctx := context.Background()

	second, err := env.service.RefreshToken(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, second.User.ID)
	assert.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	_, err = env.service.ValidateToken(second.Tokens.AccessToken)
	require.NoError(t, err)

	// The spent token is refused, the new one still works.
	_, err = env.service.RefreshToken(ctx, first.Tokens.RefreshToken)
	assert.ErrorIs(t, err, authkit.ErrRefreshTokenReused)

	_, err = env.service.RefreshToken(ctx, second.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshTokenWithoutGuard(t *testing.T) {
	env := setupTestEnv(t, func(o *authkit.Options) { o.RefreshGuard = nil })
	first := env.register(t, "fred@example.com", "password123")
	ctx := context.Background()

	_, err := env.service.RefreshToken(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
	_, err = env.service.RefreshToken(ctx, first.Tokens.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshTokenFailures(t *testing.T) {
	env := setupTestEnv(t)
	resp := env.register(t, "gina@example.com", "password123")
	ctx := context.Background()

	t.Run("access token", func(t *testing.T) {
		_, err := env.service.RefreshToken(ctx, resp.Tokens.AccessToken)
		assert.ErrorIs(t, err, authkit.ErrInvalidRefreshToken)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := env.service.RefreshToken(ctx, "garbage")
		assert.ErrorIs(t, err, authkit.ErrInvalidRefreshToken)
		ae, _ := authkit.AsAuthError(err)
		assert.Equal(t, "Invalid refresh token", ae.Message)
	})
	t.Run("expired", func(t *testing.T) {
		fresh := env.register(t, "hank@example.com", "password123")
		env.clock.Advance(8 * 24 * time.Hour)
		defer env.clock.Advance(-8 * 24 * time.Hour)
		_, err := env.service.RefreshToken(ctx, fresh.Tokens.RefreshToken)
		assert.ErrorIs(t, err, authkit.ErrInvalidRefreshToken)
	})
}

func TestRefreshTokenUnknownUser(t *testing.T) {
	env := setupTestEnv(t)
	pair, err := env.service.Tokens().Issue(&authkit.User{ID: "ghost", Email: "ghost@example.com"})
	require.NoError(t, err)

	_, err = env.service.RefreshToken(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, authkit.ErrInvalidRefreshToken)
}

func TestEventsReported(t *testing.T) {
	env := setupTestEnv(t)
	env.register(t, "ivy@example.com", "password123")
	_, _ = env.service.Login(context.Background(), "ivy@example.com", "nope-nope")

	assert.Equal(t, []string{"register:ok", "login:error"}, env.events)
}

type failingStore struct {
	authkit.UserStore
}

func (failingStore) FindUserByEmail(ctx context.Context, email string) (*authkit.User, error) {
	return nil, errors.New("connection reset")
}

func TestStoreFailuresAreInternal(t *testing.T) {
	env := setupTestEnv(t, func(o *authkit.Options) { o.Store = failingStore{memory.New()} })

	_, err := env.service.Login(context.Background(), "x@example.com", "password123")
	require.Error(t, err)
	assert.ErrorIs(t, err, authkit.ErrInternal)
	ae, _ := authkit.AsAuthError(err)
	assert.Equal(t, 500, ae.Status)
	assert.Equal(t, "Internal server error", ae.Message)
}
