package rest

import (
	"net/http"

	"github.com/davidmoltin/procurement-workflows/internal/api/rest/handlers"
	customMiddleware "github.com/davidmoltin/procurement-workflows/internal/api/rest/middleware"
	"github.com/davidmoltin/procurement-workflows/internal/models"
	"github.com/davidmoltin/procurement-workflows/pkg/config"
	"github.com/davidmoltin/procurement-workflows/pkg/logger"
	"github.com/davidmoltin/procurement-workflows/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router holds the HTTP router and dependencies
type Router struct {
	router      *chi.Mux
	logger      *logger.Logger
	handlers    *handlers.Handlers
	tokens      customMiddleware.TokenValidator
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	rateLimiter *customMiddleware.RateLimiter
}

// NewRouter creates a new HTTP router
func NewRouter(
	log *logger.Logger,
	cfg config.ServerConfig,
	h *handlers.Handlers,
	tokens customMiddleware.TokenValidator,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
) *Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))

	// Metrics middleware
	r.Use(customMiddleware.Metrics(m))

	// Security middleware
	r.Use(customMiddleware.SecurityHeaders())
	r.Use(customMiddleware.RequestSizeLimit(cfg.MaxRequestBytes()))

	// Security: Never allow "*" with credentials enabled
	allowCredentials := true
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			log.Warn("CORS: Wildcard origin '*' detected with credentials enabled. Disabling credentials for security.")
			allowCredentials = false
			break
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}))

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	return &Router{
		router:      r,
		logger:      log,
		handlers:    h,
		tokens:      tokens,
		metrics:     m,
		gatherer:    gatherer,
		rateLimiter: customMiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log),
	}
}

// SetupRoutes configures all API routes
func (r *Router) SetupRoutes() {
	// Prometheus metrics endpoint (no auth required)
	r.router.Handle("/metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))

	// Health endpoints (no auth required)
	r.router.Get("/health", r.handlers.Health.Health)
	r.router.Get("/ready", r.handlers.Health.Ready)

	auth := customMiddleware.JWTAuth(r.tokens, r.metrics, r.logger)
	limit := customMiddleware.RateLimit(r.rateLimiter)

	// API v1
	r.router.Route("/api/v1", func(router chi.Router) {
		// Auth endpoints (public, limited per IP)
		router.Route("/auth", func(router chi.Router) {
			router.With(limit).Post("/register", r.handlers.Auth.Register)
			router.With(limit).Post("/login", r.handlers.Auth.Login)
			router.With(auth).Get("/me", r.handlers.Auth.Me)
		})

		// Protected routes (require authentication)
		router.Group(func(router chi.Router) {
			router.Use(auth)
			router.Use(limit)

			router.Route("/requests", func(router chi.Router) {
				router.Get("/", r.handlers.Request.ListRequests)
				router.With(customMiddleware.RequireAnyRole([]models.Role{models.RoleStaff, models.RoleAdmin}, r.logger)).
					Post("/", r.handlers.Request.CreateRequest)

				router.Route("/{id}", func(router chi.Router) {
					router.Get("/", r.handlers.Request.GetRequest)
					router.Put("/", r.handlers.Request.UpdateRequest)
					router.Delete("/", r.handlers.Request.DeleteRequest)

					// Review; the level is derived from the caller's role
					router.Post("/approve", r.handlers.Approval.Approve)
					router.Post("/reject", r.handlers.Approval.Reject)
					router.With(customMiddleware.RequireAnyRole([]models.Role{models.RoleFinance, models.RoleAdmin}, r.logger)).
						Post("/cancel", r.handlers.Approval.Cancel)

					router.Route("/override", func(router chi.Router) {
						router.Use(customMiddleware.RequireRole(models.RoleAdmin, r.logger))
						router.Post("/approve", r.handlers.Approval.OverrideApprove)
						router.Post("/reject", r.handlers.Approval.OverrideReject)
					})

					// Documents
					router.Post("/proforma", r.handlers.Document.UploadProforma)
					router.Get("/proforma", r.handlers.Document.DownloadProforma)
					router.Post("/receipt", r.handlers.Document.UploadReceipt)
					router.Get("/receipt", r.handlers.Document.DownloadReceipt)
					router.Get("/purchase-order", r.handlers.Document.DownloadPurchaseOrder)
				})
			})
		})

		// Live request events
		if r.handlers.Events != nil {
			router.Route("/events", func(router chi.Router) {
				router.Use(customMiddleware.TokenFromQuery("access_token"))
				router.Use(auth)
				router.With(limit).Get("/", r.handlers.Events.HandleWebSocket)
				router.With(customMiddleware.RequireRole(models.RoleAdmin, r.logger)).
					Get("/stats", r.handlers.Events.HandleStats)
			})
		}
	})
}

// RateLimiter exposes the API rate limiter so its idle entries can be evicted
func (r *Router) RateLimiter() *customMiddleware.RateLimiter {
	return r.rateLimiter
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r.router
}
