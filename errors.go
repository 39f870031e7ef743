package authkit

import (
	"errors"
	"net/http"
)

// Error codes carried by AuthError.
const (
	ErrCodeValidation          = "validation_error"
	ErrCodeInvalidCredentials  = "invalid_credentials"
	ErrCodeDifferentLogin      = "different_login_method"
	ErrCodeUserExists          = "user_exists"
	ErrCodeUserNotFound        = "user_not_found"
	ErrCodeUnauthorized        = "unauthorized"
	ErrCodeForbidden           = "forbidden"
	ErrCodeInvalidToken        = "invalid_token"
	ErrCodeInvalidRefreshToken = "invalid_refresh_token"
	ErrCodeRefreshTokenReused  = "refresh_token_reused"
	ErrCodeInvalidResetToken   = "invalid_reset_token"
	ErrCodeResetTokenExpired   = "reset_token_expired"
	ErrCodeOAuth               = "oauth_error"
	ErrCodeInternal            = "internal_error"
)

// AuthError is an error that knows how it should be reported to a client.
// Two AuthErrors match under errors.Is when their codes are equal, so the
// package-level sentinels can be compared against errors carrying a custom
// message.
type AuthError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`

	cause error
}

// NewAuthError creates an AuthError.
func NewAuthError(status int, code, message string) *AuthError {
	return &AuthError{Status: status, Code: code, Message: message}
}

func (e *AuthError) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error { return e.cause }

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e with a different client-facing message.
func (e *AuthError) WithMessage(msg string) *AuthError {
	out := *e
	out.Message = msg
	return &out
}

// Wrap returns a copy of e that records cause for logging. The cause is never
// sent to clients.
func (e *AuthError) Wrap(cause error) *AuthError {
	out := *e
	out.cause = cause
	return &out
}

var (
	ErrValidation           = NewAuthError(http.StatusBadRequest, ErrCodeValidation, "Validation error")
	ErrInvalidCredentials   = NewAuthError(http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid credentials")
	ErrDifferentLoginMethod = NewAuthError(http.StatusUnauthorized, ErrCodeDifferentLogin, "Account exists with different login method")
	ErrUserExists           = NewAuthError(http.StatusConflict, ErrCodeUserExists, "User already exists")
	ErrUserNotFound         = NewAuthError(http.StatusNotFound, ErrCodeUserNotFound, "User not found")
	ErrUnauthorized         = NewAuthError(http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized access")
	ErrForbidden            = NewAuthError(http.StatusForbidden, ErrCodeForbidden, "Forbidden access")
	ErrInvalidToken         = NewAuthError(http.StatusUnauthorized, ErrCodeInvalidToken, "Invalid or expired token")
	ErrInvalidRefreshToken  = NewAuthError(http.StatusUnauthorized, ErrCodeInvalidRefreshToken, "Invalid refresh token")
	ErrRefreshTokenReused   = NewAuthError(http.StatusUnauthorized, ErrCodeRefreshTokenReused, "Refresh token has already been used")
	ErrInvalidResetToken    = NewAuthError(http.StatusBadRequest, ErrCodeInvalidResetToken, "Invalid or expired token")
	ErrResetTokenExpired    = NewAuthError(http.StatusBadRequest, ErrCodeResetTokenExpired, "Reset token has expired")
	ErrOAuth                = NewAuthError(http.StatusUnauthorized, ErrCodeOAuth, "OAuth authentication failed")
	ErrInternal             = NewAuthError(http.StatusInternalServerError, ErrCodeInternal, "Internal server error")
)

// Repository level errors. Stores wrap these; the service maps them onto
// AuthErrors.
var (
	ErrNotFound  = errors.New("authkit: user not found")
	ErrDuplicate = errors.New("authkit: duplicate user")
)

// AsAuthError extracts an AuthError from err's chain.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
