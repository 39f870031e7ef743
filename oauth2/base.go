package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"

	"github.com/panyam/authkit"
)

// Provider is one OAuth2 identity provider: the code-exchange config plus the
// profile lookup that turns an access token into an identity.
type Provider struct {
	Name   string
	Config oauth2.Config

	// UserInfoURL is the profile endpoint. Can be overridden for testing.
	UserInfoURL string

	// HTTPClient is used for the token exchange and profile calls.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	fetch func(ctx context.Context, p *Provider, token *oauth2.Token) (authkit.OAuthIdentity, error)
}

func newProvider(name, clientID, clientSecret, callbackURL string) *Provider {
	prefix := "OAUTH2_" + strings.ToUpper(name) + "_"
	if clientID == "" {
		clientID = strings.TrimSpace(os.Getenv(prefix + "CLIENT_ID"))
	}
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv(prefix + "CLIENT_SECRET"))
	}
	if callbackURL == "" {
		callbackURL = strings.TrimSpace(os.Getenv(prefix + "CALLBACK_URL"))
	}
	return &Provider{
		Name: name,
		Config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
		},
	}
}

// AuthCodeURL returns the provider consent page for state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.Config.Exchange(p.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%s code exchange: %w", p.Name, err)
	}
	return token, nil
}

// FetchIdentity loads the provider profile behind token.
func (p *Provider) FetchIdentity(ctx context.Context, token *oauth2.Token) (authkit.OAuthIdentity, error) {
	if p.fetch == nil {
		return authkit.OAuthIdentity{}, fmt.Errorf("%s: no profile lookup configured", p.Name)
	}
	identity, err := p.fetch(ctx, p, token)
	if err != nil {
		return authkit.OAuthIdentity{}, err
	}
	identity.Provider = p.Name
	return identity, nil
}

func (p *Provider) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.HTTPClient)
}

// getJSON calls url with the bearer token and decodes the body into out.
func (p *Provider) getJSON(ctx context.Context, url string, token *oauth2.Token, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client().Do(req)
	if err != nil {
		return fmt.Errorf("failed getting user info from %s: %w", p.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s user info: status %d: %s", p.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to parse user info: %w", err)
	}
	return nil
}
