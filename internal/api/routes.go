package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/delivery-engine/internal/config"
)

// Deps are the services the router exposes. Webhooks and Health may be nil.
type Deps struct {
	Messages     MessageService
	Suppressions SuppressionService
	Gate         GateChecker
	Webhooks     WebhookHandler
	Health       *HealthChecker
}

// WebhookHandler accepts provider notifications.
type WebhookHandler interface {
	HandleSESWebhook(w http.ResponseWriter, r *http.Request)
}

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter builds the chi router with the standard middleware stack.
func NewRouter(cfg config.ServerConfig, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))

	if deps.Health != nil {
		r.Get("/health", deps.Health.HandleHealth)
		r.Get("/health/live", deps.Health.HandleLiveness)
		r.Get("/health/ready", deps.Health.HandleReadiness)
	}

	if deps.Webhooks != nil {
		r.Post("/webhooks/ses", deps.Webhooks.HandleSESWebhook)
	}

	r.Route("/v1", func(r chi.Router) {
		NewMessageHandler(deps.Messages).RegisterRoutes(r)
		NewSuppressionHandler(deps.Suppressions, deps.Gate).RegisterRoutes(r)
	})

	return r
}
