package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/auth"
	"github.com/fixhub/fixhub/internal/web/ratelimit"
	"github.com/fixhub/fixhub/internal/web/response"
)

// RateLimit limits authenticated callers by user id and anonymous ones by
// client address. A limiter failure lets the request through.
func RateLimit(limiter ratelimit.Limiter, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)

			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter(time.Now())))
				response.RenderError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if p := auth.PrincipalFrom(r.Context()); p != nil {
		return ratelimit.UserKey(p.UserID)
	}
	return ratelimit.IPKey(ClientIP(r))
}

// ClientIP returns the first X-Forwarded-For address, else the remote host
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
