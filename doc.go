// Package authkit provides email/password and OAuth authentication for Go
// HTTP services, issuing JWT access and refresh tokens.
//
// # Architecture
//
// User: a single account record keyed by email. A user signs in either with a
// bcrypt-hashed password or through one bound OAuth provider (GitHub, Google
// or Facebook). An OAuth login with the email of an existing account links
// that account instead of creating a second one.
//
// UserStore: persistence for users. Implementations live under stores/:
// memory, fs (JSON files), gorm (SQLite and PostgreSQL), mongo and gae
// (Cloud Datastore). stores/storetest holds the conformance suite they all
// pass.
//
// AuthService: registration, login, token refresh, OAuth linking and the
// password reset flow on top of a UserStore and a TokenIssuer.
//
// AuthController: the JSON HTTP API over an AuthService, mounted on a
// gorilla/mux router.
//
// # Basic Usage
//
//	import (
//	    "github.com/panyam/authkit"
//	    "github.com/panyam/authkit/stores/memory"
//	)
//
//	svc, err := authkit.NewAuthService(authkit.Options{
//	    Store: memory.New(),
//	    Tokens: &authkit.TokenIssuer{
//	        AccessSecret:  os.Getenv("JWT_SECRET"),
//	        RefreshSecret: os.Getenv("REFRESH_SECRET"),
//	    },
//	    EmailSender:  &authkit.ConsoleEmailSender{},
//	    RefreshGuard: authkit.NewRefreshGuard(0),
//	})
//
//	ctrl := &authkit.AuthController{Service: svc}
//	r := mux.NewRouter()
//	ctrl.Mount(r.PathPrefix("/api/v1/auth").Subrouter())
//
// Protect application routes with the middleware:
//
//	api := r.PathPrefix("/api/v1/admin").Subrouter()
//	api.Use(authkit.AuthenticateJWT(svc), authkit.AuthorizeRoles(authkit.RoleAdmin))
//
// # Tokens
//
// Access tokens live one hour and refresh tokens 7 days by default. Both
// carry a "typ" claim, so a refresh token is never accepted where an access
// token is expected even when both secrets are equal. With a RefreshGuard
// each refresh token can be exchanged once.
//
// # Related packages
//
// server wires everything from a config.Config, including rate limiting and
// Prometheus metrics. oauth2 implements the provider flows, email the SMTP
// sender, grpc the interceptors, and client a Go client with a file-backed
// credential store. cmd/authkit is the CLI.
package authkit
