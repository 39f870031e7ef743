package authkit

import (
	"fmt"
	"regexp"
)

// DefaultMinPasswordLength is used when Options.MinPasswordLength is zero.
const DefaultMinPasswordLength = 8

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether email looks like an address. It expects an
// already normalized value.
func ValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidateCredentials checks an email/password pair for registration.
// Failures are ErrValidation with a message naming the problem.
func ValidateCredentials(email, password string, minPasswordLength int) error {
	if email == "" || password == "" {
		return ErrValidation.WithMessage("Email and password are required")
	}
	if !ValidEmail(email) {
		return ErrValidation.WithMessage("Invalid email format")
	}
	return ValidatePassword(password, minPasswordLength)
}

// ValidatePassword enforces the minimum password length and the bcrypt
// input limit of MaxPasswordBytes.
func ValidatePassword(password string, minLength int) error {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	if password == "" {
		return ErrValidation.WithMessage("Password is required")
	}
	if len(password) < minLength {
		return ErrValidation.WithMessage(fmt.Sprintf("Password must be at least %d characters", minLength))
	}
	if len(password) > MaxPasswordBytes {
		return ErrValidation.WithMessage(fmt.Sprintf("Password must be at most %d bytes", MaxPasswordBytes))
	}
	return nil
}
