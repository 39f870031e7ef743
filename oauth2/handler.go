package oauth2

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"go.uber.org/zap"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/logging"
)

// StateLifetime bounds how long a user may sit on the consent page.
const StateLifetime = 10 * time.Minute

// NewSessionManager returns the scs manager that carries the anti-CSRF state
// between the redirect and the callback.
func NewSessionManager(secure bool) *scs.SessionManager {
	sm := scs.New()
	sm.Lifetime = StateLifetime
	sm.Cookie.Name = "authkit_oauth"
	sm.Cookie.HttpOnly = true
	sm.Cookie.Secure = secure
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Persist = false
	return sm
}

// Handler runs the authorization code flow for one Provider. It implements
// authkit.OAuthFlow.
type Handler struct {
	Provider *Provider
	Sessions *scs.SessionManager

	// OnUser receives the verified identity.
	OnUser func(w http.ResponseWriter, r *http.Request, identity authkit.OAuthIdentity)

	// OnError receives any failure in the callback.
	OnError func(w http.ResponseWriter, r *http.Request, err error)

	Logger *zap.Logger
}

// NewHandler returns a Handler that finishes logins through ctrl.
func NewHandler(p *Provider, sessions *scs.SessionManager, ctrl *authkit.AuthController) *Handler {
	return &Handler{
		Provider: p,
		Sessions: sessions,
		OnUser:   ctrl.CompleteOAuth,
		OnError:  ctrl.FailOAuth,
	}
}

func (h *Handler) ProviderName() string { return h.Provider.Name }

func (h *Handler) logger() *zap.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return logging.Named("oauth2")
}

func (h *Handler) stateKey() string { return "oauth_state_" + h.Provider.Name }

// HandleLogin redirects to the provider's consent page.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	h.Sessions.LoadAndSave(http.HandlerFunc(h.login)).ServeHTTP(w, r)
}

// HandleCallback checks the state, exchanges the code and hands the
// identity to OnUser.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	h.Sessions.LoadAndSave(http.HandlerFunc(h.callback)).ServeHTTP(w, r)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Sessions.Put(r.Context(), h.stateKey(), state)
	http.Redirect(w, r, h.Provider.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	expected := h.Sessions.PopString(ctx, h.stateKey())

	if reason := r.FormValue("error"); reason != "" {
		h.fail(w, r, authkit.ErrOAuth.WithMessage("Authorization denied: "+reason))
		return
	}
	if expected == "" || r.FormValue("state") != expected {
		h.fail(w, r, authkit.ErrOAuth.WithMessage("Invalid OAuth state"))
		return
	}
	code := r.FormValue("code")
	if code == "" {
		h.fail(w, r, authkit.ErrOAuth.WithMessage("Missing authorization code"))
		return
	}

	token, err := h.Provider.Exchange(ctx, code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	identity, err := h.Provider.FetchIdentity(ctx, token)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger().Debug("oauth identity received",
		logging.Provider(identity.Provider), logging.Email(identity.Email))
	h.OnUser(w, r, identity)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.OnError != nil {
		h.OnError(w, r, err)
		return
	}
	h.logger().Warn("oauth callback failed", logging.Provider(h.Provider.Name), logging.Err(err))
	authkit.WriteError(w, r, authkit.ErrOAuth.Wrap(err))
}
