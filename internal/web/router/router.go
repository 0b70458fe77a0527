// Package router exposes the entity service over HTTP
package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fixhub/fixhub/internal/auth"
	"github.com/fixhub/fixhub/internal/orm/crud"
	"github.com/fixhub/fixhub/internal/orm/rls"
	"github.com/fixhub/fixhub/internal/web/middleware"
	"github.com/fixhub/fixhub/internal/web/ratelimit"
	"github.com/fixhub/fixhub/internal/web/response"
)

// EntityService is the part of the entity service the handlers call
type EntityService interface {
	FindByID(ctx context.Context, entity string, id interface{}, rlsCtx *rls.Context) (map[string]interface{}, error)
	FindAll(ctx context.Context, entity string, opts crud.FindOptions, rlsCtx *rls.Context) (*crud.ListResult, error)
	Create(ctx context.Context, entity string, data map[string]interface{}, opts *crud.WriteOptions) (map[string]interface{}, error)
	Update(ctx context.Context, entity string, id interface{}, data map[string]interface{}, opts *crud.WriteOptions) (map[string]interface{}, error)
	Delete(ctx context.Context, entity string, id interface{}, opts *crud.WriteOptions) (*crud.DeleteResult, error)
	Batch(ctx context.Context, entity string, ops []crud.BatchOperation, opts crud.BatchOptions) (*crud.BatchResult, error)
}

// Pinger reports database health
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Config holds the router's collaborators
type Config struct {
	Service EntityService
	Tokens  middleware.TokenValidator
	// Limiter is optional; nil disables rate limiting
	Limiter ratelimit.Limiter
	// DB is optional and backs the health check
	DB     Pinger
	Logger *zap.Logger

	// APIPrefix defaults to "/api"
	APIPrefix string
	// Audit controls whether mutations carry an audit context
	Audit bool
}

// RouteInfo describes one registered route
type RouteInfo struct {
	Method  string
	Pattern string
}

// entityRoute is an endpoint mounted under {prefix}/{entity}
type entityRoute struct {
	method     string
	path       string
	permission auth.Permission
	handle     func(*handlers, http.ResponseWriter, *http.Request)
}

var entityRoutes = []entityRoute{
	{http.MethodGet, "/", auth.EntityRead, (*handlers).list},
	{http.MethodPost, "/", auth.EntityCreate, (*handlers).create},
	{http.MethodPost, "/batch", auth.EntityBatch, (*handlers).batch},
	{http.MethodGet, "/{id}", auth.EntityRead, (*handlers).show},
	{http.MethodPatch, "/{id}", auth.EntityUpdate, (*handlers).update},
	{http.MethodDelete, "/{id}", auth.EntityDelete, (*handlers).delete},
}

// New builds the HTTP handler for the entity API
func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	if prefix == "/" {
		prefix = "/api"
	}

	h := &handlers{
		service: cfg.Service,
		logger:  cfg.Logger,
		audit:   cfg.Audit,
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Logging(cfg.Logger, "/health"),
		middleware.Recovery(cfg.Logger),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.RenderError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.RenderError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", health(cfg.DB))

	r.Route(prefix, func(api chi.Router) {
		api.Use(middleware.Authenticate(cfg.Tokens, cfg.Logger))
		if cfg.Limiter != nil {
			api.Use(middleware.RateLimit(cfg.Limiter, cfg.Logger))
		}

		api.Route("/{entity}", func(e chi.Router) {
			for _, rt := range entityRoutes {
				handle := rt.handle
				e.With(middleware.RequirePermission(rt.permission)).
					Method(rt.method, rt.path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
						handle(h, w, r)
					}))
			}
		})
	})

	return r
}

// Routes lists the routes of a handler built by New
func Routes(handler http.Handler) []RouteInfo {
	routes, ok := handler.(chi.Routes)
	if !ok {
		return nil
	}

	var out []RouteInfo
	chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		out = append(out, RouteInfo{Method: method, Pattern: strings.TrimSuffix(route, "/")})
		return nil
	})
	return out
}

// PermissionFor returns the permission guarding a route listed by Routes,
// or "-" for public routes
func PermissionFor(method, pattern string) string {
	_, rest, ok := strings.Cut(pattern, "/{entity}")
	if !ok {
		return "-"
	}
	if rest == "" {
		rest = "/"
	}
	for _, rt := range entityRoutes {
		if rt.method == method && rt.path == rest {
			return string(rt.permission)
		}
	}
	return "-"
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				response.JSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":   "unavailable",
					"database": "unreachable",
				})
				return
			}
		}
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
