package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/stores/memory"
)

type testServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func (s *testServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// newTestServer runs the real auth routes under /api/v1/auth plus an
// authenticated echo endpoint.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	svc, err := authkit.NewAuthService(authkit.Options{
		Store:        memory.New(),
		Tokens:       &authkit.TokenIssuer{AccessSecret: "client-access", RefreshSecret: "client-refresh"},
		RefreshGuard: authkit.NewRefreshGuard(time.Hour),
		BcryptCost:   bcrypt.MinCost,
	})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}

	router := mux.NewRouter()
	ctrl := &authkit.AuthController{Service: svc}
	ctrl.Mount(router.PathPrefix("/api/v1/auth").Subrouter())
	router.Handle("/api/v1/echo", authkit.AuthenticateJWT(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	})))

	ts := &testServer{hits: map[string]int{}}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.hits[r.URL.Path]++
		ts.mu.Unlock()
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestAuthClient_RegisterMeLogout(t *testing.T) {
	ts := newTestServer(t)
	store := newMemoryStore()
	c := NewAuthClient(ts.URL, store)
	ctx := context.Background()

	cred, err := c.Register(ctx, "cli@example.com", "password123", "CLI User")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if cred.AccessToken == "" || cred.RefreshToken == "" {
		t.Fatalf("expected both tokens, got %+v", cred)
	}
	if cred.UserEmail != "cli@example.com" || cred.UserID == "" {
		t.Errorf("unexpected identity on credential: %+v", cred)
	}
	if !cred.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt should be in the future, got %v", cred.ExpiresAt)
	}
	if stored, _ := store.GetCredential(ts.URL); stored == nil || stored.AccessToken != cred.AccessToken {
		t.Fatal("credential not stored")
	}

	user, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if user.Email != "cli@example.com" || user.Name != "CLI User" {
		t.Errorf("unexpected user %+v", user)
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if c.IsLoggedIn() {
		t.Error("expected logged out")
	}
	if ts.count("/api/v1/auth/logout") != 1 {
		t.Error("expected logout to reach the server")
	}

	_, err = c.Me(ctx)
	if !errors.Is(err, authkit.ErrUnauthorized) {
		t.Errorf("expected unauthorized after logout, got %v", err)
	}
}

func TestAuthClient_LoginErrors(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	if _, err := NewAuthClient(ts.URL, newMemoryStore()).Register(ctx, "dup@example.com", "password123", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	store := newMemoryStore()
	c := NewAuthClient(ts.URL, store)

	_, err := c.Login(ctx, "dup@example.com", "wrong-password")
	if !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Errorf("expected invalid credentials, got %v", err)
	}
	var ae *authkit.AuthError
	if !errors.As(err, &ae) || ae.Status != http.StatusUnauthorized {
		t.Errorf("expected 401 AuthError, got %#v", err)
	}
	if cred, _ := store.GetCredential(ts.URL); cred != nil {
		t.Error("failed login must not store a credential")
	}

	_, err = c.Register(ctx, "dup@example.com", "password123", "")
	if !errors.Is(err, authkit.ErrUserExists) {
		t.Errorf("expected user exists, got %v", err)
	}

	if _, err := c.Login(ctx, "dup@example.com", "password123"); err != nil {
		t.Errorf("Login() error = %v", err)
	}
}

func TestAuthClient_RefreshRotatesTokens(t *testing.T) {
	ts := newTestServer(t)
	store := newMemoryStore()
	c := NewAuthClient(ts.URL, store)
	ctx := context.Background()

	first, err := c.Register(ctx, "rot@example.com", "password123", "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	second, _ := store.GetCredential(ts.URL)
	if second.RefreshToken == first.RefreshToken {
		t.Error("expected a new refresh token")
	}
	if second.UserID != first.UserID {
		t.Errorf("user changed across refresh: %q vs %q", second.UserID, first.UserID)
	}

	// Replaying the old refresh token is rejected.
	store.SetCredential(ts.URL, first)
	err = c.Refresh(ctx)
	if !errors.Is(err, authkit.ErrRefreshTokenReused) {
		t.Errorf("expected refresh_token_reused, got %v", err)
	}

	store.RemoveCredential(ts.URL)
	if err := c.Refresh(ctx); err == nil {
		t.Error("expected error when not logged in")
	}
}

func TestAuthClient_GetTokenRefreshesNearExpiry(t *testing.T) {
	ts := newTestServer(t)
	store := newMemoryStore()
	c := NewAuthClient(ts.URL, store)
	ctx := context.Background()

	cred, err := c.Register(ctx, "soon@example.com", "password123", "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	expiring := *cred
	expiring.ExpiresAt = time.Now().Add(10 * time.Second)
	store.SetCredential(ts.URL, &expiring)

	token, err := c.GetToken(ctx)
	if err != nil {
		t.Fatalf("GetToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
	if ts.count("/api/v1/auth/refresh-token") != 1 {
		t.Errorf("expected one refresh, got %d", ts.count("/api/v1/auth/refresh-token"))
	}
	updated, _ := store.GetCredential(ts.URL)
	if updated.IsExpiringSoon(RefreshThreshold) {
		t.Errorf("refreshed credential still expiring: %v", updated.ExpiresAt)
	}
}

func TestAuthClient_TransportRetriesOn401(t *testing.T) {
	ts := newTestServer(t)
	store := newMemoryStore()
	c := NewAuthClient(ts.URL, store)
	ctx := context.Background()

	cred, err := c.Register(ctx, "retry@example.com", "password123", "")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	stale := *cred
	stale.AccessToken = "not-a-jwt"
	store.SetCredential(ts.URL, &stale)

	resp, err := c.HTTPClient().Post(ts.URL+"/api/v1/echo", "text/plain", strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after refresh, got %d: %s", resp.StatusCode, body)
	}
	if string(body) != "payload" {
		t.Errorf("body was not replayed, got %q", body)
	}
	if ts.count("/api/v1/echo") != 2 {
		t.Errorf("expected 2 attempts, got %d", ts.count("/api/v1/echo"))
	}
	if updated, _ := store.GetCredential(ts.URL); updated.AccessToken == "not-a-jwt" {
		t.Error("stored access token was not replaced")
	}
}

func TestAuthClient_TransportNoRetryWithoutRefreshToken(t *testing.T) {
	ts := newTestServer(t)
	store := newMemoryStore()
	store.SetCredential(ts.URL, &ServerCredential{AccessToken: "not-a-jwt", ExpiresAt: time.Now().Add(time.Hour)})
	c := NewAuthClient(ts.URL, store)

	_, err := c.Me(context.Background())
	if !errors.Is(err, authkit.ErrInvalidToken) {
		t.Errorf("expected invalid token, got %v", err)
	}
	if ts.count("/api/v1/auth/me") != 1 {
		t.Errorf("expected a single attempt, got %d", ts.count("/api/v1/auth/me"))
	}
	if ts.count("/api/v1/auth/refresh-token") != 0 {
		t.Error("refresh should not be attempted")
	}
}

type countingTransport struct {
	base  http.RoundTripper
	count atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.count.Add(1)
	return c.base.RoundTrip(req)
}

func TestAuthClient_WithHTTPClient(t *testing.T) {
	ts := newTestServer(t)
	transport := &countingTransport{base: http.DefaultTransport}
	c := NewAuthClient(ts.URL, newMemoryStore(), WithHTTPClient(&http.Client{
		Transport: transport,
		Timeout:   5 * time.Second,
	}))
	ctx := context.Background()

	if _, err := c.Register(ctx, "custom@example.com", "password123", ""); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := c.Me(ctx); err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if got := transport.count.Load(); got != 2 {
		t.Errorf("expected both requests through the custom transport, got %d", got)
	}
	if c.HTTPClient().Timeout != 5*time.Second {
		t.Errorf("timeout not applied: %v", c.HTTPClient().Timeout)
	}
}
