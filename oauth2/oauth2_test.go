package oauth2_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oauth2lib "golang.org/x/oauth2"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/oauth2"
	"github.com/panyam/authkit/stores/memory"
)

// mockOAuthServer is a fake provider serving /token, /user, /user/emails and
// /userinfo.
type mockOAuthServer struct {
	server *httptest.Server

	userInfoResponse map[string]any
	emailsResponse   []map[string]any
	tokenError       bool
	userInfoError    bool
	lastAuthHeader   string
}

func newMockOAuthServer(t *testing.T) *mockOAuthServer {
	mock := &mockOAuthServer{
		userInfoResponse: map[string]any{
			"id":    12345,
			"email": "testuser@example.com",
			"name":  "Test User",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if mock.tokenError {
			http.Error(w, "token exchange failed", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	userInfo := func(w http.ResponseWriter, r *http.Request) {
		mock.lastAuthHeader = r.Header.Get("Authorization")
		if mock.userInfoError {
			http.Error(w, "user info failed", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfoResponse)
	}
	mux.HandleFunc("/user", userInfo)
	mux.HandleFunc("/userinfo", userInfo)
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.emailsResponse)
	})

	mock.server = httptest.NewServer(mux)
	t.Cleanup(mock.server.Close)
	return mock
}

// point redirects a provider at the mock server.
func (m *mockOAuthServer) point(p *oauth2.Provider, userInfoPath string) *oauth2.Provider {
	p.Config.Endpoint = oauth2lib.Endpoint{
		AuthURL:   m.server.URL + "/authorize",
		TokenURL:  m.server.URL + "/token",
		AuthStyle: oauth2lib.AuthStyleInParams,
	}
	p.UserInfoURL = m.server.URL + userInfoPath
	p.HTTPClient = m.server.Client()
	return p
}

type flowEnv struct {
	store   *memory.Store
	handler *oauth2.Handler
	router  http.Handler
}

func setupFlow(t *testing.T, p *oauth2.Provider) *flowEnv {
	t.Helper()
	store := memory.New()
	svc, err := authkit.NewAuthService(authkit.Options{
		Store:  store,
		Tokens: &authkit.TokenIssuer{AccessSecret: "access", RefreshSecret: "refresh"},
	})
	require.NoError(t, err)

	ctrl := &authkit.AuthController{Service: svc}
	h := oauth2.NewHandler(p, oauth2.NewSessionManager(false), ctrl)
	ctrl.OAuth = []authkit.OAuthFlow{h}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/"+p.Name, h.HandleLogin)
	mux.HandleFunc("/auth/"+p.Name+"/callback", h.HandleCallback)
	return &flowEnv{store: store, handler: h, router: mux}
}

// startLogin runs the redirect step and returns the state and session cookie.
func (e *flowEnv) startLogin(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/"+e.handler.ProviderName(), nil))
	require.Equal(t, http.StatusFound, rr.Code)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "authkit_oauth" {
			session = c
		}
	}
	require.NotNil(t, session, "session cookie must be set")
	return state, session
}

func (e *flowEnv) callback(query string, session *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/"+e.handler.ProviderName()+"/callback?"+query, nil)
	if session != nil {
		req.AddCookie(session)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func TestProviderDefaults(t *testing.T) {
	tests := []struct {
		provider *oauth2.Provider
		name     string
		scope    string
		authHost string
	}{
		{oauth2.NewGitHubProvider("id", "secret", "cb"), authkit.ProviderGitHub, "user:email", "github.com"},
		{oauth2.NewGoogleProvider("id", "secret", "cb"), authkit.ProviderGoogle, "https://www.googleapis.com/auth/userinfo.email", "accounts.google.com"},
		{oauth2.NewFacebookProvider("id", "secret", "cb"), authkit.ProviderFacebook, "email", "facebook.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.provider.Name)
			assert.Contains(t, tt.provider.Config.Scopes, tt.scope)
			assert.Contains(t, tt.provider.Config.Endpoint.AuthURL, tt.authHost)
			assert.Equal(t, "cb", tt.provider.Config.RedirectURL)
			assert.NotEmpty(t, tt.provider.UserInfoURL)
		})
	}
}

func TestProviderReadsEnvironment(t *testing.T) {
	t.Setenv("OAUTH2_GITHUB_CLIENT_ID", " env-id ")
	t.Setenv("OAUTH2_GITHUB_CLIENT_SECRET", "env-secret")
	t.Setenv("OAUTH2_GITHUB_CALLBACK_URL", "http://localhost/cb")

	p := oauth2.NewGitHubProvider("", "", "")
	assert.Equal(t, "env-id", p.Config.ClientID)
	assert.Equal(t, "env-secret", p.Config.ClientSecret)
	assert.Equal(t, "http://localhost/cb", p.Config.RedirectURL)

	t.Setenv("OAUTH2_FACEBOOK_CLIENT_ID", "fb-env-id")
	fb := oauth2.NewFacebookProvider("", "fb-secret", "")
	assert.Equal(t, "fb-env-id", fb.Config.ClientID)
	assert.Equal(t, "fb-secret", fb.Config.ClientSecret)
}

func TestLoginRedirect(t *testing.T) {
	mock := newMockOAuthServer(t)
	env := setupFlow(t, mock.point(oauth2.NewGoogleProvider("client-1", "s", "http://app/cb"), "/userinfo"))

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	require.Equal(t, http.StatusFound, rr.Code)

	loc := rr.Header().Get("Location")
	assert.True(t, strings.HasPrefix(loc, mock.server.URL+"/authorize"), loc)
	u, err := url.Parse(loc)
	require.NoError(t, err)
	assert.Equal(t, "client-1", u.Query().Get("client_id"))
	assert.Equal(t, "http://app/cb", u.Query().Get("redirect_uri"))
	assert.NotEmpty(t, u.Query().Get("state"))
}

func TestGoogleCallback(t *testing.T) {
	mock := newMockOAuthServer(t)
	mock.userInfoResponse = map[string]any{"id": "g-42", "email": "Goo@Example.com", "name": "Goo"}
	env := setupFlow(t, mock.point(oauth2.NewGoogleProvider("id", "s", "cb"), "/userinfo"))

	state, session := env.startLogin(t)
	rr := env.callback("state="+state+"&code=abc", session)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "Google login successful")
	assert.Equal(t, "Bearer mock_access_token", mock.lastAuthHeader)

	user, err := env.store.FindUserByProviderID(t.Context(), authkit.ProviderGoogle, "g-42")
	require.NoError(t, err)
	assert.Equal(t, "goo@example.com", user.Email)
	assert.Equal(t, "Goo", user.Name)
}

func TestGitHubCallbackFetchesPrivateEmail(t *testing.T) {
	mock := newMockOAuthServer(t)
	mock.userInfoResponse = map[string]any{"id": 9876543210, "login": "octocat", "name": "", "email": nil}
	mock.emailsResponse = []map[string]any{
		{"email": "unverified@example.com", "primary": false, "verified": false},
		{"email": "octo@example.com", "primary": true, "verified": true},
	}
	env := setupFlow(t, mock.point(oauth2.NewGitHubProvider("id", "s", "cb"), "/user"))

	state, session := env.startLogin(t)
	rr := env.callback("state="+state+"&code=abc", session)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "GitHub login successful")

	user, err := env.store.FindUserByProviderID(t.Context(), authkit.ProviderGitHub, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", user.Email)
	assert.Equal(t, "octocat", user.Name, "login is the fallback display name")
}

func TestFacebookCallback(t *testing.T) {
	mock := newMockOAuthServer(t)
	mock.userInfoResponse = map[string]any{"id": "fb-1", "email": "face@example.com", "name": "Face"}
	env := setupFlow(t, mock.point(oauth2.NewFacebookProvider("id", "s", "cb"), "/userinfo"))

	state, session := env.startLogin(t)
	rr := env.callback("state="+state+"&code=abc", session)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "Facebook login successful")
	assert.Equal(t, 1, env.store.Len())
}

func TestCallbackFailures(t *testing.T) {
	mock := newMockOAuthServer(t)
	env := setupFlow(t, mock.point(oauth2.NewGoogleProvider("id", "s", "cb"), "/userinfo"))

	t.Run("wrong state", func(t *testing.T) {
		_, session := env.startLogin(t)
		rr := env.callback("state=forged&code=abc", session)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "Invalid OAuth state")
	})

	t.Run("no session", func(t *testing.T) {
		rr := env.callback("state=whatever&code=abc", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("state is single use", func(t *testing.T) {
		state, session := env.startLogin(t)
		rr := env.callback("state="+state+"&code=abc", session)
		require.Equal(t, http.StatusOK, rr.Code)
		rr = env.callback("state="+state+"&code=abc", session)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("provider error", func(t *testing.T) {
		state, session := env.startLogin(t)
		rr := env.callback("state="+state+"&error=access_denied", session)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), "access_denied")
	})

	t.Run("token exchange", func(t *testing.T) {
		mock.tokenError = true
		defer func() { mock.tokenError = false }()
		state, session := env.startLogin(t)
		rr := env.callback("state="+state+"&code=abc", session)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), authkit.ErrCodeOAuth)
	})

	t.Run("user info", func(t *testing.T) {
		mock.userInfoError = true
		defer func() { mock.userInfoError = false }()
		state, session := env.startLogin(t)
		rr := env.callback("state="+state+"&code=abc", session)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("missing email", func(t *testing.T) {
		mock.userInfoResponse = map[string]any{"id": "no-mail"}
		state, session := env.startLogin(t)
		rr := env.callback("state="+state+"&code=abc", session)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
