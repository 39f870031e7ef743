package authkit

import (
	"context"
	"errors"
	"fmt"

	"github.com/panyam/authkit/logging"
)

// OAuthIdentity is the profile a provider returned for the signed in user.
type OAuthIdentity struct {
	Email      string
	Name       string
	Provider   string
	ProviderID string
}

// HandleOAuthUser logs in the account bound to identity, linking an existing
// account with the same email or creating a new one when needed.
func (s *AuthService) HandleOAuthUser(ctx context.Context, identity OAuthIdentity) (resp *AuthResponse, err error) {
	ctx, span := s.startSpan(ctx, EventOAuthLogin)
	defer func() { s.finish(span, EventOAuthLogin, err) }()

	email := NormalizeEmail(identity.Email)
	if email == "" || identity.ProviderID == "" {
		return nil, ErrOAuth.WithMessage("Provider did not return an email and account id")
	}
	if !KnownProvider(identity.Provider) {
		return nil, ErrOAuth.WithMessage(fmt.Sprintf("Unsupported provider %q", identity.Provider))
	}

	user, err := s.store.FindUserByProviderID(ctx, identity.Provider, identity.ProviderID)
	switch {
	case err == nil:
		return s.respond(user)
	case !errors.Is(err, ErrNotFound):
		return nil, ErrInternal.Wrap(err)
	}

	user, err = s.store.FindUserByEmail(ctx, email)
	switch {
	case err == nil:
		linked, err := s.store.UpdateUser(ctx, user.ID, UserUpdate{
			Provider:   Ptr(identity.Provider),
			ProviderID: Ptr(identity.ProviderID),
		})
		if err != nil {
			return nil, ErrInternal.WithMessage("Failed to update user").Wrap(err)
		}
		s.log.Info("linked oauth identity", logging.UserID(linked.ID), logging.Provider(identity.Provider))
		return s.respond(linked)
	case !errors.Is(err, ErrNotFound):
		return nil, ErrInternal.Wrap(err)
	}

	created, err := s.store.CreateUser(ctx, &User{
		Email:      email,
		Name:       identity.Name,
		Role:       RoleUser,
		Provider:   identity.Provider,
		ProviderID: identity.ProviderID,
	})
	if err != nil {
		return nil, ErrInternal.Wrap(fmt.Errorf("create oauth user: %w", err))
	}
	s.log.Info("created oauth user", logging.UserID(created.ID), logging.Provider(identity.Provider))
	return s.respond(created)
}
