package grpc

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"

	"github.com/panyam/authkit"
)

func TestBearerFromIncomingContext(t *testing.T) {
	tests := []struct {
		name     string
		md       metadata.MD
		expected string
	}{
		{"no metadata", nil, ""},
		{"bearer", metadata.Pairs("authorization", "Bearer abc"), "abc"},
		{"lowercase scheme", metadata.Pairs("authorization", "bearer xyz"), "xyz"},
		{"basic scheme", metadata.Pairs("authorization", "Basic abc"), ""},
		{"empty token", metadata.Pairs("authorization", "Bearer"), ""},
		{"other key", metadata.Pairs("x-user-id", "user123"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			if got := BearerFromIncomingContext(ctx); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestTokenToOutgoingContext(t *testing.T) {
	ctx := TokenToOutgoingContext(context.Background(), "tok-1")

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	values := md.Get(MetadataKeyAuthorization)
	if len(values) != 1 || values[0] != "Bearer tok-1" {
		t.Errorf("unexpected authorization metadata: %v", values)
	}

	// What a client sends is what a server reads.
	in := metadata.NewIncomingContext(context.Background(), md)
	if got := BearerFromIncomingContext(in); got != "tok-1" {
		t.Errorf("expected round trip, got %q", got)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("empty context must not be authenticated")
	}
	ctx := authkit.ContextWithClaims(context.Background(), &authkit.Claims{UserID: "user123", Role: authkit.RoleUser})
	if got := UserIDFromContext(ctx); got != "user123" {
		t.Errorf("expected user123, got %q", got)
	}
	if !IsAuthenticated(ctx) {
		t.Error("expected authenticated context")
	}
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.Role != authkit.RoleUser {
		t.Errorf("unexpected claims: %+v", claims)
	}
}
