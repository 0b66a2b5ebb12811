// Package router assembles the HTTP routes and their middleware chains.
package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/idxstock/stockapi/internal/handler"
	"github.com/idxstock/stockapi/internal/metrics"
	"github.com/idxstock/stockapi/internal/middleware"
	"github.com/idxstock/stockapi/internal/service"
)

// AuthRateLimit configures per-IP limiting of the credential endpoints.
type AuthRateLimit struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// Options holds request-level settings.
type Options struct {
	IsDevelopment bool
	CORSOrigins   []string
	MaxBodySize   int64
	AuthRateLimit AuthRateLimit
}

// Deps holds everything the routes need. Quota, Usage and Limiter may be
// nil in tests; a nil Quota admits every call without accounting.
type Deps struct {
	Logger         *slog.Logger
	Metrics        metrics.Recorder
	MetricsHandler http.Handler

	Auth   *service.AuthService
	Stocks *service.StockService
	Admin  *service.AdminService

	Quota   middleware.QuotaConsumer
	Usage   middleware.UsageRecorder
	Limiter middleware.RateLimiter

	DB    handler.HealthChecker
	Cache handler.HealthChecker

	Options Options
}

// New builds the application router.
//
// Route groups:
//
//	/auth    public register/login (IP rate limited), session-protected profile
//	/api/v1  API key, then quota, then usage audit
//	/admin   session plus ADMIN role
func New(d Deps) http.Handler {
	if d.Metrics == nil {
		d.Metrics = metrics.NewNoop()
	}

	h := handler.New()
	healthHandler := handler.NewHealthHandler(d.DB, d.Cache)
	authHandler := handler.NewAuthHandler(d.Auth, d.Logger)
	stockHandler := handler.NewStockHandler(d.Stocks, d.Logger)
	adminHandler := handler.NewAdminHandler(d.Admin, d.Stocks, d.Logger)

	authCfg := middleware.AuthConfig{
		Logger:   d.Logger,
		Metrics:  d.Metrics,
		Sessions: d.Auth,
		APIKeys:  d.Auth,
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger, d.Metrics))
	r.Use(middleware.Recoverer(d.Logger))
	r.Use(middleware.Security(middleware.SecurityConfig{IsDevelopment: d.Options.IsDevelopment}))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(d.Options.CORSOrigins, d.Options.IsDevelopment)))
	if d.Options.MaxBodySize > 0 {
		r.Use(middleware.MaxBodySize(d.Options.MaxBodySize))
	}

	r.Get("/", h.Root)
	r.Get("/health", healthHandler.Health)
	r.Get("/readyz", healthHandler.Readyz)
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		limited := r.With(middleware.RateLimitIP(middleware.RateLimitConfig{
			Logger:  d.Logger,
			Limiter: d.Limiter,
			Enabled: d.Options.AuthRateLimit.Enabled,
			Scope:   "auth",
			RPS:     d.Options.AuthRateLimit.RPS,
			Burst:   d.Options.AuthRateLimit.Burst,
		}))
		limited.Post("/register", authHandler.Register)
		limited.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(authCfg))
			r.Get("/profile", authHandler.Profile)
			r.Post("/regenerate-key", authHandler.RegenerateKey)
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(authCfg))
		if d.Quota != nil {
			r.Use(middleware.Quota(d.Quota, d.Logger))
		}
		if d.Usage != nil {
			r.Use(middleware.Usage(d.Usage))
		}

		r.Route("/stocks", func(r chi.Router) {
			r.Get("/", stockHandler.List)
			r.Get("/search", stockHandler.Search)
			r.Get("/summary", stockHandler.Summary)
			r.Get("/{symbol}", stockHandler.Get)
			r.Get("/{symbol}/history", stockHandler.History)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Session(authCfg))
		r.Use(middleware.RequireAdmin(authCfg))

		r.Get("/users", adminHandler.ListUsers)
		r.Get("/stats", adminHandler.Stats)
		r.Route("/stocks", func(r chi.Router) {
			r.Get("/", adminHandler.ListStocks)
			r.Post("/", adminHandler.CreateStock)
			r.Put("/{id}", adminHandler.UpdateStock)
			r.Delete("/{id}", adminHandler.DeleteStock)
		})
	})

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
