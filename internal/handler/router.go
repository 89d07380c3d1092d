package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/paragon-edu/gatehouse/internal/auth"
	"github.com/paragon-edu/gatehouse/internal/metrics"
)

// HealthChecker reports backing store health for the health endpoint.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// RouterConfig contains everything the router needs.
type RouterConfig struct {
	AuthHandler       *AuthHandler
	LinkHandler       *LinkHandler
	PrepAccessHandler *PrepAccessHandler
	UserHandler       *UserHandler

	SessionCodec *auth.SessionCodec
	OwnerGate    *auth.OwnerGate

	Database HealthChecker
	Metrics  *metrics.Metrics

	MetricsEnabled bool
	MetricsPath    string

	Logger zerolog.Logger
}

// NewRouter builds the HTTP route tree.
//
// Gates are route-scoped: the owner key protects the administrative
// surface, the session gate is optional on link checks (guests get a
// verdict, just usually a denial) and strict on entitlement checks.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger.With().Str("component", "router").Logger()

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger, cfg.Metrics))

	r.Get("/health", healthHandler(cfg.Database))
	if cfg.MetricsEnabled && cfg.Metrics != nil {
		r.Method(http.MethodGet, cfg.MetricsPath, cfg.Metrics.Handler())
	}

	sessionOptional := auth.SessionMiddleware(cfg.SessionCodec, auth.GateOptional, logger)
	sessionStrict := auth.SessionMiddleware(cfg.SessionCodec, auth.GateStrict, logger)
	ownerOnly := auth.OwnerMiddleware(cfg.OwnerGate, logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", cfg.AuthHandler.Login)

		r.Route("/links", func(r chi.Router) {
			r.With(sessionOptional).Get("/check", cfg.LinkHandler.Check)

			r.Group(func(r chi.Router) {
				r.Use(ownerOnly)
				r.Post("/", cfg.LinkHandler.Create)
				r.Post("/revoke", cfg.LinkHandler.Revoke)
				r.Post("/{token}/users", cfg.LinkHandler.AddUser)
				r.Post("/{token}/group-keys", cfg.LinkHandler.AddGroupKey)
				r.Get("/{token}/stats", cfg.LinkHandler.Stats)
			})
		})

		r.Route("/prep-access", func(r chi.Router) {
			r.With(sessionStrict).Get("/check", cfg.PrepAccessHandler.Check)

			r.Group(func(r chi.Router) {
				r.Use(ownerOnly)
				r.Post("/", cfg.PrepAccessHandler.Grant)
				r.Post("/archive", cfg.PrepAccessHandler.Archive)
			})
		})

		r.With(ownerOnly).Post("/users", cfg.UserHandler.Create)
	})

	return r
}

// healthHandler reports service and store health.
func healthHandler(db HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Health(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}

// requestLogger logs each request and feeds the HTTP counter.
func requestLogger(logger zerolog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if m != nil {
				m.RecordHTTPRequest(r.Method, statusClass(status))
			}
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("request handled")
		})
	}
}

// statusClass buckets a status code into 2xx/3xx/4xx/5xx.
func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
