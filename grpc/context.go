// Package grpc authenticates gRPC calls with the same access tokens the HTTP
// API issues, carried as "authorization: Bearer <jwt>" metadata.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	"github.com/panyam/authkit"
)

// MetadataKeyAuthorization is the gRPC metadata key holding the bearer token.
const MetadataKeyAuthorization = "authorization"

// BearerFromIncomingContext returns the bearer token of an incoming call, or
// "" when absent.
func BearerFromIncomingContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(MetadataKeyAuthorization) {
		if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			return strings.TrimSpace(v[7:])
		}
	}
	return ""
}

// TokenToOutgoingContext attaches token to outgoing calls made with ctx.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, MetadataKeyAuthorization, "Bearer "+token)
}

// ClaimsFromContext returns the claims the interceptor verified.
func ClaimsFromContext(ctx context.Context) (*authkit.Claims, bool) {
	return authkit.ClaimsFromContext(ctx)
}

// UserIDFromContext returns the authenticated user id, or "".
func UserIDFromContext(ctx context.Context) string {
	return authkit.UserIDFromContext(ctx)
}

// IsAuthenticated reports whether the call carried a valid token.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}
