package authkit

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/panyam/authkit/logging"
)

// Default cookie lifetimes.
const (
	AccessCookieMaxAge  = 24 * time.Hour
	RefreshCookieMaxAge = 7 * 24 * time.Hour
)

// OAuthFlow is one provider's redirect and callback pair, as implemented by
// oauth2.Handler. The callback finishes by calling
// AuthController.CompleteOAuth or AuthController.FailOAuth.
type OAuthFlow interface {
	ProviderName() string
	HandleLogin(w http.ResponseWriter, r *http.Request)
	HandleCallback(w http.ResponseWriter, r *http.Request)
}

// AuthController exposes an AuthService over HTTP.
type AuthController struct {
	Service *AuthService

	// Production marks cookies Secure.
	Production bool

	// CookieDomain is set on auth cookies when not empty.
	CookieDomain string

	// ResetURL is the page users land on from the reset email. When empty it
	// is derived from the request as <scheme>://<host>/auth/reset-password.
	ResetURL string

	// SuccessRedirectURL, when set, makes OAuth callbacks redirect there
	// instead of answering with JSON.
	SuccessRedirectURL string

	// OAuth holds the enabled providers.
	OAuth []OAuthFlow

	// TrustedProxies resolves the client address recorded in logs.
	TrustedProxies *TrustedProxies

	Logger *zap.Logger
}

func (c *AuthController) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logging.Named("auth.http")
}

// Mount registers the auth routes on r, which is normally the subrouter for
// <prefix>/auth.
func (c *AuthController) Mount(r *mux.Router) {
	r.HandleFunc("/register", c.HandleRegister).Methods(http.MethodPost)
	r.HandleFunc("/login", c.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/refresh-token", c.HandleRefreshToken).Methods(http.MethodPost)
	r.HandleFunc("/logout", c.HandleLogout).Methods(http.MethodPost)
	r.Handle("/me", AuthenticateJWT(c.Service)(http.HandlerFunc(c.HandleMe))).Methods(http.MethodGet)
	r.HandleFunc("/forgot-password", c.HandleForgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/reset-password", c.HandleResetPassword).Methods(http.MethodPost)

	for _, flow := range c.OAuth {
		name := flow.ProviderName()
		r.HandleFunc("/"+name, flow.HandleLogin).Methods(http.MethodGet)
		r.HandleFunc("/"+name+"/callback", flow.HandleCallback).Methods(http.MethodGet)
	}
}

// HandleRegister handles POST /register.
func (c *AuthController) HandleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		WriteError(w, r, ErrValidation.WithMessage("Invalid request body"))
		return
	}
	email, password := body["email"], body["password"]
	if email == "" || password == "" {
		WriteError(w, r, ErrValidation.WithMessage("Email and password are required"))
		return
	}

	resp, err := c.Service.Register(r.Context(), email, password, body["name"])
	if err != nil {
		WriteError(w, r, err)
		return
	}
	c.setAuthCookies(w, resp.Tokens)
	WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "data": resp})
}

// HandleLogin handles POST /login.
func (c *AuthController) HandleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		WriteError(w, r, ErrValidation.WithMessage("Invalid request body"))
		return
	}
	email, password := body["email"], body["password"]
	if email == "" || password == "" {
		WriteError(w, r, ErrValidation.WithMessage("Email and password are required"))
		return
	}

	resp, err := c.Service.Login(r.Context(), email, password)
	if err != nil {
		c.logger().Info("login failed", logging.Email(NormalizeEmail(email)), logging.ClientIP(c.TrustedProxies.ClientIP(r)), logging.Err(err))
		WriteError(w, r, err)
		return
	}
	c.setAuthCookies(w, resp.Tokens)
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": resp})
}

// HandleRefreshToken handles POST /refresh-token. The token comes from the
// refresh cookie or the "refreshToken" body field.
func (c *AuthController) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var token string
	if cookie, err := r.Cookie(RefreshTokenCookie); err == nil {
		token = cookie.Value
	}
	if token == "" {
		body, err := readBody(r)
		if err != nil {
			WriteError(w, r, ErrValidation.WithMessage("Invalid request body"))
			return
		}
		token = body["refreshToken"]
	}
	if token == "" {
		WriteError(w, r, ErrValidation.WithMessage("Refresh token is required"))
		return
	}

	resp, err := c.Service.RefreshToken(r.Context(), token)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	c.setAuthCookies(w, resp.Tokens)
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": resp})
}

// HandleLogout handles POST /logout. Tokens stay valid until they expire;
// only the cookies are cleared.
func (c *AuthController) HandleLogout(w http.ResponseWriter, r *http.Request) {
	c.clearAuthCookies(w)
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

// HandleMe handles GET /me. It expects AuthenticateJWT to have run.
func (c *AuthController) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		WriteError(w, r, ErrUnauthorized.WithMessage("Not authenticated"))
		return
	}
	user, err := c.Service.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"user": user}})
}

// HandleForgotPassword handles POST /forgot-password. The answer is the
// same whether or not the email exists.
func (c *AuthController) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		WriteError(w, r, ErrValidation.WithMessage("Invalid request body"))
		return
	}
	email := body["email"]
	if email == "" {
		WriteError(w, r, ErrValidation.WithMessage("Email is required"))
		return
	}

	if _, err := c.Service.RequestPasswordReset(r.Context(), email, c.resetURL(r)); err != nil {
		c.logger().Error("password reset request failed", logging.Err(err))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "If the email exists, a password reset link will be sent",
	})
}

// HandleResetPassword handles POST /reset-password.
func (c *AuthController) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		WriteError(w, r, ErrValidation.WithMessage("Invalid request body"))
		return
	}
	token, newPassword := body["token"], body["newPassword"]
	if token == "" || newPassword == "" {
		WriteError(w, r, ErrValidation.WithMessage("Token and new password are required"))
		return
	}

	if err := c.Service.ResetPassword(r.Context(), token, newPassword); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password has been reset successfully"})
}

// CompleteOAuth finishes a provider callback: it links or creates the
// account, sets the auth cookies and answers with JSON or a redirect.
func (c *AuthController) CompleteOAuth(w http.ResponseWriter, r *http.Request, identity OAuthIdentity) {
	resp, err := c.Service.HandleOAuthUser(r.Context(), identity)
	if err != nil {
		c.FailOAuth(w, r, err)
		return
	}
	c.setAuthCookies(w, resp.Tokens)
	if c.SuccessRedirectURL != "" {
		http.Redirect(w, r, c.SuccessRedirectURL, http.StatusFound)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": providerTitle(identity.Provider) + " login successful",
		"data":    resp,
	})
}

// FailOAuth reports a failed provider callback.
func (c *AuthController) FailOAuth(w http.ResponseWriter, r *http.Request, err error) {
	c.logger().Warn("oauth login failed", logging.Path(r.URL.Path), logging.Err(err))
	if _, ok := AsAuthError(err); !ok {
		err = ErrOAuth.Wrap(err)
	}
	WriteError(w, r, err)
}

func (c *AuthController) resetURL(r *http.Request) string {
	if c.ResetURL != "" {
		return c.ResetURL
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/auth/reset-password"
}

func (c *AuthController) setAuthCookies(w http.ResponseWriter, tokens *TokenPair) {
	if tokens == nil {
		return
	}
	http.SetCookie(w, c.cookie(AccessTokenCookie, tokens.AccessToken, AccessCookieMaxAge))
	http.SetCookie(w, c.cookie(RefreshTokenCookie, tokens.RefreshToken, RefreshCookieMaxAge))
}

func (c *AuthController) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessTokenCookie, RefreshTokenCookie} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

func (c *AuthController) cookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.CookieDomain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Production,
		SameSite: http.SameSiteStrictMode,
	}
}

func providerTitle(p string) string {
	switch p {
	case ProviderGitHub:
		return "GitHub"
	case "":
		return "OAuth"
	}
	return strings.ToUpper(p[:1]) + p[1:]
}
