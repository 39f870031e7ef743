package grpc

import (
	"context"
	"slices"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/logging"
)

// InterceptorConfig configures the auth interceptors.
type InterceptorConfig struct {
	// Validator checks access tokens, normally an *authkit.AuthService.
	Validator authkit.TokenValidator

	// RequireAuth when true rejects calls without a valid token.
	// When false, calls proceed and ClaimsFromContext reports nothing.
	RequireAuth bool

	// PublicMethods skip the auth requirement. Keys are full method names
	// like "/package.Service/Method".
	PublicMethods map[string]bool

	// MethodRoles restricts methods to the listed roles.
	MethodRoles map[string][]string
}

// NewInterceptorConfig requires auth on every method except publicMethods.
func NewInterceptorConfig(v authkit.TokenValidator, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Validator:     v,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
		MethodRoles:   make(map[string][]string),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that admits unauthenticated calls.
func OptionalAuthConfig(v authkit.TokenValidator) *InterceptorConfig {
	config := NewInterceptorConfig(v)
	config.RequireAuth = false
	return config
}

// RequireRoles restricts method to roles and returns the config.
func (c *InterceptorConfig) RequireRoles(method string, roles ...string) *InterceptorConfig {
	if c.MethodRoles == nil {
		c.MethodRoles = make(map[string][]string)
	}
	c.MethodRoles[method] = roles
	return c
}

// authenticate returns ctx carrying the verified claims, or a status error.
func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	public := c.PublicMethods[method]
	roles, restricted := c.MethodRoles[method]

	var claims *authkit.Claims
	if token := BearerFromIncomingContext(ctx); token != "" {
		var err error
		claims, err = c.Validator.ValidateToken(token)
		if err != nil {
			logging.Named("grpc").Debug("token rejected", logging.Method(method), logging.Err(err))
			if !public {
				return ctx, status.Error(codes.Unauthenticated, "invalid or expired token")
			}
			claims = nil
		}
	}

	if claims == nil {
		if (c.RequireAuth && !public) || restricted {
			return ctx, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}
	if restricted && !slices.Contains(roles, claims.Role) {
		return ctx, status.Error(codes.PermissionDenied, "insufficient permissions")
	}
	return authkit.ContextWithClaims(ctx, claims), nil
}

func (c *InterceptorConfig) validate() {
	if c.Validator == nil {
		panic("grpc: InterceptorConfig.Validator is required")
	}
}

// UnaryAuthInterceptor returns a unary interceptor enforcing config.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.validate()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor returns a stream interceptor enforcing config.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.validate()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authStream{ServerStream: ss, ctx: ctx})
	}
}

// authStream overrides Context so handlers see the verified claims.
type authStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authStream) Context() context.Context { return s.ctx }
