package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"honeypot-lab/internal/api/handlers"
	apimiddleware "honeypot-lab/internal/api/middleware"
	"honeypot-lab/internal/config"
	"honeypot-lab/pkg/logger"
)

// Router holds dependencies for the API router
type Router struct {
	config   config.Config
	handlers *handlers.Handlers
	limiter  apimiddleware.RateLimitChecker
	logger   *logger.Logger
}

// NewRouter creates a new Router instance. limiter may be nil, in which case
// rate limiting is skipped even when enabled.
func NewRouter(cfg config.Config, h *handlers.Handlers, limiter apimiddleware.RateLimitChecker, log *logger.Logger) *Router {
	return &Router{
		config:   cfg,
		handlers: h,
		limiter:  limiter,
		logger:   log.WithComponent("router"),
	}
}

// Setup sets up the Chi router with all routes and middleware
func (r *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Core middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(apimiddleware.ProcessTime)
	router.Use(apimiddleware.Logger(r.logger))
	router.Use(middleware.Recoverer)
	if r.config.Server.RequestTimeout > 0 {
		router.Use(middleware.Timeout(r.config.Server.RequestTimeout))
	}

	// CORS
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   r.config.CORS.AllowedOrigins,
		AllowedMethods:   r.config.CORS.AllowedMethods,
		AllowedHeaders:   r.config.CORS.AllowedHeaders,
		AllowCredentials: r.config.CORS.AllowCredentials,
		MaxAge:           r.config.CORS.MaxAge,
	}))

	// Rate limiting
	if r.config.RateLimit.Enabled && r.limiter != nil {
		router.Use(apimiddleware.RateLimiter(r.limiter, r.config.RateLimit, r.logger))
	}

	// Public routes
	router.Group(func(pub chi.Router) {
		pub.Get("/", r.handlers.Health.Root)
		pub.Get("/health", r.handlers.Health.Check)
		pub.Get("/ready", r.handlers.Health.Ready)
	})

	// Authenticated routes
	router.Group(func(api chi.Router) {
		api.Use(apimiddleware.APIKeyAuth(r.config.Auth.APIKey))

		// Turn endpoint, served on every path callers have used
		api.Post("/analyze", r.handlers.Analyze.Analyze)
		api.Post("/api/analyze", r.handlers.Analyze.Analyze)
		api.Post("/api/v1/analyze", r.handlers.Analyze.Analyze)

		// Operator endpoints
		api.Get("/debug/session/{id}", r.handlers.Sessions.Debug)
		api.Post("/debug/session/{id}", r.handlers.Sessions.Debug)
		api.Get("/debug/stats", r.handlers.Sessions.Stats)
		api.Post("/callback/force/{id}", r.handlers.Sessions.ForceCallback)

		// Cross-session correlation
		api.Route("/api/v1/correlations", func(c chi.Router) {
			c.Get("/session/{id}", r.handlers.Correlation.RelatedSessions)
			c.Get("/{value}", r.handlers.Correlation.ByIndicator)
		})
	})

	return router
}
