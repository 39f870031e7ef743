package authkit

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RefreshGuard remembers which refresh tokens have already been exchanged so
// a token can only be rotated once. Entries live until the token would have
// expired anyway. State is process local.
type RefreshGuard struct {
	c *gocache.Cache
}

// NewRefreshGuard creates a guard. defaultTTL bounds entries whose expiry is
// unknown.
func NewRefreshGuard(defaultTTL time.Duration) *RefreshGuard {
	if defaultTTL <= 0 {
		defaultTTL = TokenExpiryRefreshToken
	}
	return &RefreshGuard{c: gocache.New(defaultTTL, 10*time.Minute)}
}

// MarkUsed records jti as spent until expiresAt. It returns false when jti
// was already spent.
func (g *RefreshGuard) MarkUsed(jti string, expiresAt time.Time) bool {
	if jti == "" {
		return true
	}
	ttl := gocache.DefaultExpiration
	if !expiresAt.IsZero() {
		ttl = time.Until(expiresAt)
		if ttl <= 0 {
			return true
		}
	}
	return g.c.Add(jti, struct{}{}, ttl) == nil
}

// Used reports whether jti was already spent.
func (g *RefreshGuard) Used(jti string) bool {
	_, ok := g.c.Get(jti)
	return ok
}
