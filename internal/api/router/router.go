package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/dealership-platform/internal/appointments"
	httpmiddleware "github.com/wolfman30/dealership-platform/internal/http/middleware"
	"github.com/wolfman30/dealership-platform/internal/vehicles"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Appointments       *appointments.Handler
	Vehicles           *vehicles.Handler
	Health             *HealthHandler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// AdminAuthSecret gates the staff endpoints with a bearer JWT. Empty leaves
	// them open, for local development only.
	AdminAuthSecret string

	// BookingLimiter throttles the public booking form per client IP.
	BookingLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil, cfg.Logger)
	}
	r.Get("/health", health.Live)
	r.Get("/ready", health.Ready)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	adminAuth := func(next http.Handler) http.Handler { return next }
	if cfg.AdminAuthSecret != "" {
		adminAuth = httpmiddleware.AdminJWT(cfg.AdminAuthSecret)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.Appointments != nil {
			api.Route("/appointments", func(ar chi.Router) {
				cfg.Appointments.PublicRoutes(ar)
				if cfg.BookingLimiter != nil {
					ar.With(httpmiddleware.RateLimit(cfg.BookingLimiter)).Post("/", cfg.Appointments.Create)
				} else {
					ar.Post("/", cfg.Appointments.Create)
				}
				ar.Group(func(admin chi.Router) {
					admin.Use(adminAuth)
					cfg.Appointments.AdminRoutes(admin)
				})
			})
		}
		if cfg.Vehicles != nil {
			api.Route("/vehicles", func(vr chi.Router) {
				cfg.Vehicles.PublicRoutes(vr)
				vr.Group(func(admin chi.Router) {
					admin.Use(adminAuth)
					cfg.Vehicles.AdminRoutes(admin)
				})
			})
		}
	})

	return r
}
