package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/config"
	"github.com/panyam/authkit/server"
	"github.com/panyam/authkit/stores/memory"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	// Keep stray .env files and config out of the test.
	args = append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...)
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "", "hash-password", "--cost", "4", "s3cret-pass")
	require.NoError(t, err)
	ok, err := authkit.ComparePassword(strings.TrimSpace(out), "s3cret-pass")
	require.NoError(t, err)
	assert.True(t, ok)

	out, err = run(t, "from-stdin\n", "hash-password", "--cost", "4")
	require.NoError(t, err)
	ok, _ = authkit.ComparePassword(strings.TrimSpace(out), "from-stdin")
	assert.True(t, ok)

	_, err = run(t, "", "hash-password")
	assert.Error(t, err)
}

func TestTokenVerify(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	issuer := &authkit.TokenIssuer{AccessSecret: config.DefaultJWTSecret, RefreshSecret: config.DefaultRefreshSecret}
	pair, err := issuer.Issue(&authkit.User{ID: "u-1", Email: "cli@example.com", Role: authkit.RoleAdmin})
	require.NoError(t, err)

	out, err := run(t, "", "token", "verify", pair.AccessToken)
	require.NoError(t, err)
	var claims authkit.Claims
	require.NoError(t, json.Unmarshal([]byte(out), &claims))
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, authkit.RoleAdmin, claims.Role)

	_, err = run(t, "", "token", "verify", pair.RefreshToken)
	assert.Error(t, err, "refresh token is not an access token")

	_, err = run(t, "", "token", "verify", "--refresh", pair.RefreshToken)
	assert.NoError(t, err)

	_, err = run(t, "", "token", "verify", "--secret", "other", pair.AccessToken)
	assert.ErrorContains(t, err, "invalid token")
}

func TestLoginWhoamiLogout(t *testing.T) {
	svc, err := authkit.NewAuthService(authkit.Options{
		Store:      memory.New(),
		Tokens:     &authkit.TokenIssuer{AccessSecret: "a", RefreshSecret: "r"},
		BcryptCost: bcrypt.MinCost,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(server.NewRouter(server.RouterOptions{Controller: &authkit.AuthController{Service: svc}}))
	defer ts.Close()

	creds := filepath.Join(t.TempDir(), "credentials.json")
	common := []string{"--server", ts.URL, "--credentials", creds}

	_, err = run(t, "", append([]string{"whoami"}, common...)...)
	assert.ErrorContains(t, err, "not logged in")

	out, err := run(t, "password123\n", append([]string{"login", "--register", "--email", "cli@example.com", "--name", "CLI"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in to "+ts.URL+" as cli@example.com")

	out, err = run(t, "", append([]string{"whoami"}, common...)...)
	require.NoError(t, err)
	var user authkit.PublicUser
	require.NoError(t, json.Unmarshal([]byte(out), &user))
	assert.Equal(t, "cli@example.com", user.Email)
	assert.Equal(t, "CLI", user.Name)

	_, err = run(t, "", append([]string{"login", "--email", "cli@example.com", "--password", "wrong-password"}, common...)...)
	assert.ErrorIs(t, err, authkit.ErrInvalidCredentials)

	out, err = run(t, "", append([]string{"logout"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = run(t, "", append([]string{"whoami"}, common...)...)
	assert.ErrorContains(t, err, "not logged in")
}
