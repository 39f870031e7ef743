// Package server assembles the HTTP API: the auth routes plus health,
// metrics, rate limiting and security headers.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/logging"
	"github.com/panyam/authkit/metrics"
	"github.com/panyam/authkit/ratelimit"
)

type RouterOptions struct {
	Controller *authkit.AuthController // Required

	// APIPrefix is where the API lives, "/api/v1" by default.
	APIPrefix string

	// Metrics, when set, instruments every route and serves /metrics.
	Metrics *metrics.Metrics

	// Limiter, when set, throttles the /auth routes.
	Limiter          ratelimit.Limiter
	RateLimitMessage string

	// TrustedProxies decides when forwarding headers name the client.
	// Nil keys clients by their connection address.
	TrustedProxies *authkit.TrustedProxies

	// Routes mounts extra application routes on the API subrouter.
	Routes func(api *mux.Router)

	Logger *zap.Logger
}

// NewRouter returns the full API handler.
func NewRouter(opts RouterOptions) http.Handler {
	prefix := opts.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	prefix = strings.TrimRight(prefix, "/")
	log := opts.Logger
	if log == nil {
		log = logging.Named("http")
	}

	r := mux.NewRouter()
	r.Use(accessLog(log, opts.TrustedProxies))
	var notFound http.Handler = http.HandlerFunc(handleNotFound)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)
		notFound = opts.Metrics.Middleware(notFound)
	}
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound

	api := r
	if prefix != "" {
		api = r.PathPrefix(prefix).Subrouter()
	}
	api.HandleFunc("/health", handleHealth).Methods(http.MethodGet)

	auth := api.PathPrefix("/auth").Subrouter()
	if opts.Limiter != nil {
		auth.Use(ratelimit.Middleware(opts.Limiter, opts.RateLimitMessage,
			ratelimit.WithClientIP(opts.TrustedProxies.ClientIP)))
	}
	opts.Controller.Mount(auth)

	if opts.Routes != nil {
		opts.Routes(api)
	}

	return authkit.SecurityHeaders(r)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	authkit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	authkit.WriteJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"message": "API endpoint not found",
	})
}

func accessLog(log *zap.Logger, proxies *authkit.TrustedProxies) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("request",
				logging.Method(r.Method),
				logging.Path(r.URL.Path),
				logging.ClientIP(proxies.ClientIP(r)),
				logging.Duration("elapsed", time.Since(start)))
		})
	}
}
