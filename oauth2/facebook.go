package oauth2

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/panyam/authkit"
)

// NewFacebookProvider returns the Facebook provider, reading the profile from
// the Graph API. Empty arguments fall back to OAUTH2_FACEBOOK_CLIENT_ID,
// OAUTH2_FACEBOOK_CLIENT_SECRET and OAUTH2_FACEBOOK_CALLBACK_URL.
func NewFacebookProvider(clientID, clientSecret, callbackURL string) *Provider {
	p := newProvider(authkit.ProviderFacebook, clientID, clientSecret, callbackURL)
	p.Config.Endpoint = facebook.Endpoint
	p.Config.Scopes = []string{"email"}
	p.UserInfoURL = "https://graph.facebook.com/me?fields=id,name,email"
	p.fetch = fetchFacebookIdentity
	return p
}

func fetchFacebookIdentity(ctx context.Context, p *Provider, token *oauth2.Token) (authkit.OAuthIdentity, error) {
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
