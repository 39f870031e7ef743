package oauth2

import (
	"context"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/panyam/authkit"
)

// NewGitHubProvider returns the GitHub provider. Empty arguments fall back to
// OAUTH2_GITHUB_CLIENT_ID, OAUTH2_GITHUB_CLIENT_SECRET and
// OAUTH2_GITHUB_CALLBACK_URL.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *Provider {
	p := newProvider(authkit.ProviderGitHub, clientID, clientSecret, callbackURL)
	p.Config.Endpoint = github.Endpoint
	p.Config.Scopes = []string{"read:user", "user:email"}
	p.UserInfoURL = "https://api.github.com/user"
	p.fetch = fetchGitHubIdentity
	return p
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// fetchGitHubIdentity reads /user, then /user/emails when the account keeps
// its address private.
func fetchGitHubIdentity(ctx context.Context, p *Provider, token *oauth2.Token) (authkit.OAuthIdentity, error) {
	var user profile
	if err := p.getJSON(ctx, p.UserInfoURL, token, &user); err != nil {
		return authkit.OAuthIdentity{}, err
	}
	identity := authkit.OAuthIdentity{
		ProviderID: user.str("id"),
		Email:      user.str("email"),
		Name:       user.str("name"),
	}
	if identity.Name == "" {
		identity.Name = user.str("login")
	}

	if identity.Email == "" {
		var emails []githubEmail
		if err := p.getJSON(ctx, strings.TrimSuffix(p.UserInfoURL, "/")+"/emails", token, &emails); err != nil {
			return authkit.OAuthIdentity{}, err
		}
		identity.Email = pickGitHubEmail(emails)
	}
	return identity, nil
}

// pickGitHubEmail prefers the primary verified address, then any verified one.
func pickGitHubEmail(emails []githubEmail) string {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email
		}
	}
	return ""
}
