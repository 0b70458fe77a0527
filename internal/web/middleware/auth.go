package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/auth"
	"github.com/fixhub/fixhub/internal/web/response"
)

type holderKey struct{}

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, holderKey{}, h)
}

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Authenticate requires a valid bearer token and attaches the caller's
// principal to the request context
func Authenticate(tokens TokenValidator, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				response.RenderError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			claims, err := tokens.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.Debug("token rejected",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Error(err),
				)
				response.RenderError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			userID, err := claims.UserID()
			if err != nil || auth.GetRoleByName(claims.Role) == nil {
				response.RenderError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}

			p := &auth.Principal{UserID: userID, Role: claims.Role}
			if h, ok := r.Context().Value(holderKey{}).(*principalHolder); ok {
				h.principal = p
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequirePermission rejects callers whose role lacks permission
func RequirePermission(permission auth.Permission) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.PrincipalFrom(r.Context())
			if p == nil {
				response.RenderError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if !auth.UserHasPermission(p.Role, permission) {
				response.RenderError(w, http.StatusForbidden, "Access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
