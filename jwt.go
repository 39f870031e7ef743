package authkit

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default token lifetimes.
const (
	TokenExpiryAccessToken  = 1 * time.Hour
	TokenExpiryRefreshToken = 7 * 24 * time.Hour
)

// Values of the typ claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims are the JWT claims authkit signs. Refresh tokens only carry UserID,
// Type and the registered claims (with a unique ID).
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenPair is returned on register, login, refresh and OAuth login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// TokenValidator verifies access tokens. Both TokenIssuer and AuthService
// implement it.
type TokenValidator interface {
	ValidateToken(token string) (*Claims, error)
}

// TokenIssuer signs and verifies HS256 access and refresh tokens.
type TokenIssuer struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration // Defaults to TokenExpiryAccessToken
	RefreshExpiry time.Duration // Defaults to TokenExpiryRefreshToken
	Issuer        string        // Optional; checked on validation when set

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (t *TokenIssuer) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *TokenIssuer) accessExpiry() time.Duration {
	if t.AccessExpiry > 0 {
		return t.AccessExpiry
	}
	return TokenExpiryAccessToken
}

func (t *TokenIssuer) refreshExpiry() time.Duration {
	if t.RefreshExpiry > 0 {
		return t.RefreshExpiry
	}
	return TokenExpiryRefreshToken
}

// Issue creates a fresh access/refresh pair for user.
func (t *TokenIssuer) Issue(user *User) (*TokenPair, error) {
	if t.AccessSecret == "" || t.RefreshSecret == "" {
		return nil, errors.New("token issuer: secrets not configured")
	}
	now := t.now()

	access := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Type:   TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    t.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.accessExpiry())),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, access).SignedString([]byte(t.AccessSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := &Claims{
		UserID: user.ID,
		Type:   TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    t.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.refreshExpiry())),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refresh).SignedString([]byte(t.RefreshSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(t.accessExpiry().Seconds()),
	}, nil
}

// ValidateAccessToken verifies an access token. Every failure is reported as
// ErrInvalidToken wrapping the underlying cause.
func (t *TokenIssuer) ValidateAccessToken(token string) (*Claims, error) {
	claims, err := t.parse(token, t.AccessSecret, TokenTypeAccess)
	if err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}
	return claims, nil
}

// ValidateRefreshToken verifies a refresh token. Failures are ErrInvalidToken;
// the service reports them to clients as ErrInvalidRefreshToken.
func (t *TokenIssuer) ValidateRefreshToken(token string) (*Claims, error) {
	claims, err := t.parse(token, t.RefreshSecret, TokenTypeRefresh)
	if err != nil {
		return nil, ErrInvalidToken.Wrap(err)
	}
	return claims, nil
}

// ValidateToken is ValidateAccessToken; it makes TokenIssuer a TokenValidator.
func (t *TokenIssuer) ValidateToken(token string) (*Claims, error) {
	return t.ValidateAccessToken(token)
}

func (t *TokenIssuer) parse(tokenString, secret, wantType string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("empty token")
	}
	if secret == "" {
		return nil, errors.New("secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Type != wantType {
		return nil, fmt.Errorf("invalid token type %q", claims.Type)
	}
	if claims.UserID == "" {
		return nil, errors.New("missing userId")
	}
	return claims, nil
}
