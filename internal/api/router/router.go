package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stylebook/salon-reminders/internal/bookings"
	httpmiddleware "github.com/stylebook/salon-reminders/internal/http/middleware"
	"github.com/stylebook/salon-reminders/internal/messaging"
	"github.com/stylebook/salon-reminders/internal/reminders"
	"github.com/stylebook/salon-reminders/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	RemindersHandler   *reminders.Handler
	BookingsHandler    *bookings.Handler
	MessagingHandler   *messaging.Handler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RatePerSecond      float64
	RateBurst          int

	// HealthCheck reports readiness of the reminder store; nil means always healthy.
	HealthCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))

	r.Get("/health", healthHandler(cfg.HealthCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Provider callbacks authenticate themselves (signature or shared URL).
	if cfg.MessagingHandler != nil {
		r.Route("/webhooks", cfg.MessagingHandler.RegisterWebhookRoutes)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpmiddleware.RateLimit(cfg.RatePerSecond, cfg.RateBurst))
		if cfg.RemindersHandler != nil {
			cfg.RemindersHandler.RegisterRoutes(api)
		}
		if cfg.BookingsHandler != nil {
			cfg.BookingsHandler.RegisterRoutes(api)
		}
	})

	// Dashboard routes are only mounted when a signing secret is configured.
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.RemindersHandler != nil {
				cfg.RemindersHandler.RegisterAdminRoutes(admin)
			}
			if cfg.MessagingHandler != nil {
				cfg.MessagingHandler.RegisterAdminRoutes(admin)
			}
		})
	} else if cfg.Logger != nil {
		cfg.Logger.Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
	}

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
