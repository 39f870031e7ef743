package oauth2

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/panyam/authkit"
)

// NewGoogleProvider returns the Google provider. Empty arguments fall back to
// OAUTH2_GOOGLE_CLIENT_ID, OAUTH2_GOOGLE_CLIENT_SECRET and
// OAUTH2_GOOGLE_CALLBACK_URL.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *Provider {
	p := newProvider(authkit.ProviderGoogle, clientID, clientSecret, callbackURL)
	p.Config.Endpoint = google.Endpoint
	p.Config.Scopes = []string{
		"https://www.googleapis.com/auth/userinfo.email",
		"https://www.googleapis.com/auth/userinfo.profile",
	}
	p.UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	p.fetch = fetchGoogleIdentity
	return p
}

func fetchGoogleIdentity(ctx context.Context, p *Provider, token *oauth2.Token) (authkit.OAuthIdentity, error) {
	var user profile
	if err := p.getJSON(ctx, p.UserInfoURL, token, &user); err != nil {
		return authkit.OAuthIdentity{}, err
	}
	return authkit.OAuthIdentity{
		ProviderID: user.str("id"),
		Email:      user.str("email"),
		Name:       user.str("name"),
	}, nil
}
