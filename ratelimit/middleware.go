package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/panyam/authkit"
	"github.com/panyam/authkit/logging"
)

// DefaultMessage is the body text of a throttled response.
const DefaultMessage = "Too many requests from this IP, please try again after 15 minutes"

// Option configures Middleware.
type Option func(*options)

type options struct {
	clientIP func(*http.Request) string
}

// WithClientIP sets how the limiter key is derived from a request, typically
// (*authkit.TrustedProxies).ClientIP.
func WithClientIP(f func(*http.Request) string) Option {
	return func(o *options) { o.clientIP = f }
}

// Middleware rejects clients over their limit with a JSON 429. Requests are
// keyed by authkit.ClientIP unless WithClientIP says otherwise. A failing
// limiter lets requests through.
func Middleware(l Limiter, message string, opts ...Option) func(http.Handler) http.Handler {
	if message == "" {
		message = DefaultMessage
	}
	o := options{clientIP: authkit.ClientIP}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clientIP == nil {
		o.clientIP = authkit.ClientIP
	}
	log := logging.Named("ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := o.clientIP(r)
			res, err := l.Allow(r.Context(), ip)
			if err != nil {
				log.Warn("rate limiter unavailable", logging.ClientIP(ip), logging.Err(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			h.Set("RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
				log.Info("rate limited", logging.ClientIP(ip), logging.Path(r.URL.Path))
				authkit.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
					"success": false,
					"message": message,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
