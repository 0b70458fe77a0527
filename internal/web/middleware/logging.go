package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fixhub/fixhub/internal/auth"
)

// Logging writes one access log line per request. Server errors log at
// error level and client errors at warn.
func Logging(logger *zap.Logger, skipPaths ...string) Middleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// the principal is attached further down the chain, so read it
			// through a holder the auth middleware fills in
			holder := &principalHolder{}
			next.ServeHTTP(rw, r.WithContext(withPrincipalHolder(r.Context(), holder)))

			level := zapcore.InfoLevel
			switch {
			case rw.status >= 500:
				level = zapcore.ErrorLevel
			case rw.status >= 400:
				level = zapcore.WarnLevel
			}

			fields := []zap.Field{
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.status),
				zap.Duration("duration", time.Since(start)),
				zap.Int("bytes", rw.bytes),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if p := holder.principal; p != nil {
				fields = append(fields, zap.Int64("user_id", p.UserID), zap.String("role", p.Role))
			}
			if ce := logger.Check(level, "http request"); ce != nil {
				ce.Write(fields...)
			}
		})
	}
}

type principalHolder struct {
	principal *auth.Principal
}
