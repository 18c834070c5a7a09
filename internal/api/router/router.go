package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smartfuturesg/telehealth-platform/internal/http/handlers"
	httpmiddleware "github.com/smartfuturesg/telehealth-platform/internal/http/middleware"
	"github.com/smartfuturesg/telehealth-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	SearchHandler       *handlers.SearchHandler
	BookingsHandler     *handlers.BookingsHandler
	AvailabilityHandler *handlers.AvailabilityHandler
	MetricsHandler      http.Handler
	JWTSecret           string
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
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

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", handlers.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Authenticated API
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.UserJWT(cfg.JWTSecret))

		if cfg.SearchHandler != nil {
			api.Post("/search", cfg.SearchHandler.Search)
		}

		if cfg.BookingsHandler != nil {
			api.Route("/bookings", func(r chi.Router) {
				r.Post("/", cfg.BookingsHandler.Create)
				r.Get("/", cfg.BookingsHandler.List)
				r.Route("/{bookingID}", func(r chi.Router) {
					r.Get("/", cfg.BookingsHandler.Get)
					r.Post("/accept", cfg.BookingsHandler.Accept)
					r.Post("/cancel", cfg.BookingsHandler.Cancel)
					r.Post("/start", cfg.BookingsHandler.Start)
					r.Post("/complete", cfg.BookingsHandler.Complete)
				})
			})
		}

		if cfg.AvailabilityHandler != nil {
			api.Route("/availability", func(r chi.Router) {
				r.Put("/", cfg.AvailabilityHandler.ReplaceSchedule)
				r.Get("/", cfg.AvailabilityHandler.GetSchedule)
				r.Post("/exceptions", cfg.AvailabilityHandler.AddException)
				r.Delete("/exceptions/{exceptionID}", cfg.AvailabilityHandler.DeleteException)
			})
			api.Route("/settings", func(r chi.Router) {
				r.Get("/", cfg.AvailabilityHandler.GetSettings)
				r.Put("/", cfg.AvailabilityHandler.UpdateSettings)
			})
		}
	})

	return r
}
