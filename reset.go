package authkit

import (
	"context"
	"errors"
	"net/url"

	"github.com/panyam/authkit/logging"
)

// RequestPasswordReset issues a reset token for email and mails the reset
// link. Unknown emails report success so callers cannot probe for accounts.
// The boolean is false only when a configured sender failed to deliver.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, resetURL string) (sent bool, err error) {
	ctx, span := s.startSpan(ctx, EventPasswordResetRequest)
	defer func() { s.finish(span, EventPasswordResetRequest, err) }()

	email = NormalizeEmail(email)
	if email == "" {
		return false, ErrValidation.WithMessage("Email is required")
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.log.Debug("password reset requested for unknown email", logging.Email(email))
			return true, nil
		}
		return false, ErrInternal.Wrap(err)
	}

	token, err := GenerateSecureToken()
	if err != nil {
		return false, ErrInternal.Wrap(err)
	}
	expires := s.now().Add(TokenExpiryPasswordReset)
	if _, err := s.store.UpdateUser(ctx, user.ID, UserUpdate{
		ResetPasswordToken:   Ptr(HashToken(token)),
		ResetPasswordExpires: &expires,
	}); err != nil {
		return false, ErrInternal.Wrap(err)
	}

	link := resetLink(resetURL, token)
	if s.email == nil {
		s.log.Info("password reset link generated", logging.UserID(user.ID), logging.String("link", link))
		return true, nil
	}
	if err := s.email.SendPasswordResetEmail(ctx, user.Email, link); err != nil {
		s.log.Error("failed to send password reset email", logging.UserID(user.ID), logging.Err(err))
		return false, nil
	}
	return true, nil
}

// ResetPassword sets a new password using a token from RequestPasswordReset.
// Tokens are single use.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, span := s.startSpan(ctx, EventPasswordReset)
	defer func() { s.finish(span, EventPasswordReset, err) }()

	if token == "" {
		return ErrInvalidResetToken
	}

	user, err := s.store.FindUserByResetToken(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidResetToken
		}
		return ErrInternal.Wrap(err)
	}
	if user.ResetPasswordExpires == nil || !s.now().Before(*user.ResetPasswordExpires) {
		return ErrResetTokenExpired
	}
	if err := ValidatePassword(newPassword, s.minPass); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword, s.cost)
	if err != nil {
		return ErrInternal.Wrap(err)
	}
	if _, err := s.store.UpdateUser(ctx, user.ID, UserUpdate{
		Password:        Ptr(hash),
		ClearResetToken: true,
	}); err != nil {
		return ErrInternal.Wrap(err)
	}
	s.log.Info("password reset", logging.UserID(user.ID))

	if s.email != nil {
		if err := s.email.SendPasswordChangedEmail(ctx, user.Email); err != nil {
			s.log.Warn("failed to send password changed email", logging.UserID(user.ID), logging.Err(err))
		}
	}
	return nil
}

func resetLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
