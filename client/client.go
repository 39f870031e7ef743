package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/panyam/authkit"
)

// RefreshThreshold is the remaining lifetime below which GetToken refreshes
// ahead of time.
const RefreshThreshold = time.Minute

// AuthClient talks to the auth API and manages the stored tokens.
type AuthClient struct {
	mu            sync.Mutex
	serverURL     string
	apiPrefix     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper
}

// envelope is the response shape of every auth endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    struct {
		User   *authkit.PublicUser `json:"user,omitempty"`
		Tokens *authkit.TokenPair  `json:"tokens,omitempty"`
	} `json:"data"`
}

type ClientOption func(*AuthClient)

// WithAPIPrefix sets the API prefix the auth routes live under. Defaults to
// "/api/v1".
func WithAPIPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.apiPrefix = "/" + strings.Trim(prefix, "/")
		if c.apiPrefix == "/" {
			c.apiPrefix = ""
		}
	}
}

// WithHTTPClient borrows Transport, Timeout and CheckRedirect from client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *AuthClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.CheckRedirect = client.CheckRedirect
	}
}

// WithTransport sets the RoundTripper requests finally go through.
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.baseTransport = transport
	}
}

func NewAuthClient(serverURL string, store CredentialStore, opts ...ClientOption) *AuthClient {
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &AuthClient{
		serverURL:     serverURL,
		apiPrefix:     "/api/v1",
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.Transport = &refreshTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns a client that authenticates every request and retries
// once after refreshing on 401.
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

func (c *AuthClient) authURL(path string) string {
	return c.serverURL + c.apiPrefix + "/auth" + path
}

// GetToken returns the current access token, refreshing if it is about to
// expire. It returns "" when logged out.
func (c *AuthClient) GetToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", nil
	}

	if cred.IsExpiringSoon(RefreshThreshold) && cred.HasRefreshToken() {
		if err := c.refreshLocked(ctx, cred); err != nil {
			// If refresh fails but token isn't actually expired yet, use it anyway
			if !cred.IsExpired() {
				return cred.AccessToken, nil
			}
			return "", fmt.Errorf("token expired and refresh failed: %w", err)
		}
		cred, _ = c.store.GetCredential(c.serverURL)
	}

	if cred == nil || cred.IsExpired() {
		return "", nil
	}
	return cred.AccessToken, nil
}

func (c *AuthClient) GetCredential() (*ServerCredential, error) {
	return c.store.GetCredential(c.serverURL)
}

// IsLoggedIn reports whether an unexpired access token is stored.
func (c *AuthClient) IsLoggedIn() bool {
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil {
		return false
	}
	return !cred.IsExpired()
}

// Register creates an account and stores its tokens.
func (c *AuthClient) Register(ctx context.Context, email, password, name string) (*ServerCredential, error) {
	return c.authenticate(ctx, "/register", map[string]string{
		"email": email, "password": password, "name": name,
	})
}

// Login authenticates with email and password and stores the tokens.
func (c *AuthClient) Login(ctx context.Context, email, password string) (*ServerCredential, error) {
	return c.authenticate(ctx, "/login", map[string]string{"email": email, "password": password})
}

func (c *AuthClient) authenticate(ctx context.Context, path string, body map[string]string) (*ServerCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	env, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	cred, err := credentialFrom(env)
	if err != nil {
		return nil, err
	}
	if err := c.storeLocked(cred); err != nil {
		return nil, err
	}
	return cred, nil
}

// Refresh rotates the stored tokens.
func (c *AuthClient) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil {
		return err
	}
	if cred == nil || !cred.HasRefreshToken() {
		return fmt.Errorf("not logged in to %s", c.serverURL)
	}
	return c.refreshLocked(ctx, cred)
}

// Me returns the logged in user.
func (c *AuthClient) Me(ctx context.Context) (*authkit.PublicUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.authURL("/me"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	env, err := decodeEnvelope(resp)
	if err != nil {
		return nil, err
	}
	if env.Data.User == nil {
		return nil, fmt.Errorf("invalid response from server: missing user")
	}
	return env.Data.User, nil
}

// Logout tells the server to clear its cookies and forgets the local
// credential. The local credential is removed even if the server is
// unreachable.
func (c *AuthClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, serverErr := c.post(ctx, "/logout", nil)

	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	if err := c.store.Save(); err != nil {
		return err
	}
	return serverErr
}

// refreshLocked exchanges the refresh token for a new pair. c.mu is held.
func (c *AuthClient) refreshLocked(ctx context.Context, cred *ServerCredential) error {
	env, err := c.post(ctx, "/refresh-token", map[string]string{"refreshToken": cred.RefreshToken})
	if err != nil {
		return err
	}
	newCred, err := credentialFrom(env)
	if err != nil {
		return err
	}
	if newCred.UserID == "" {
		newCred.UserID = cred.UserID
		newCred.UserEmail = cred.UserEmail
	}
	if newCred.RefreshToken == "" {
		newCred.RefreshToken = cred.RefreshToken
	}
	return c.storeLocked(newCred)
}

func (c *AuthClient) storeLocked(cred *ServerCredential) error {
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// post sends a JSON body through the base transport, bypassing the
// refreshing one.
func (c *AuthClient) post(ctx context.Context, path string, body any) (*envelope, error) {
	var payload io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL(path), payload)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := &http.Client{Transport: c.baseTransport, Timeout: c.httpClient.Timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return decodeEnvelope(resp)
}

// decodeEnvelope reads resp and turns error envelopes into *authkit.AuthError
// so callers can match them with errors.Is.
func decodeEnvelope(resp *http.Response) (*envelope, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, authkit.NewAuthError(resp.StatusCode, "", fmt.Sprintf("HTTP %d", resp.StatusCode))
		}
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		return nil, authkit.NewAuthError(resp.StatusCode, env.Code, msg)
	}
	return &env, nil
}

func credentialFrom(env *envelope) (*ServerCredential, error) {
	tokens := env.Data.Tokens
	if tokens == nil || tokens.AccessToken == "" {
		return nil, fmt.Errorf("invalid response from server: missing tokens")
	}
	now := time.Now()
	cred := &ServerCredential{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    now.Add(time.Duration(tokens.ExpiresIn) * time.Second),
		CreatedAt:    now,
	}
	if u := env.Data.User; u != nil {
		cred.UserID = u.ID
		cred.UserEmail = u.Email
	}
	return cred, nil
}
