package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reddiedev/tenext-app/internal/middleware"
	"github.com/reddiedev/tenext-app/pkg/logger"
)

// RouterConfig wires the API routes.
type RouterConfig struct {
	JWTSecret         string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	Health   *HealthHandler
	Threads  *ThreadHandler
	Messages *MessageHandler
	Events   *EventsHandler
	Admin    *AdminHandler
	// Relay is optional.
	Relay *RelayHandler

	Logger *logger.Logger
}

// NewRouter builds the HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	authed := func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.UserRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
	}

	r.Route("/api/v1", func(r chi.Router) {
		authed(r)

		r.Route("/threads", func(r chi.Router) {
			r.Post("/", cfg.Threads.Create)
			r.Get("/", cfg.Threads.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Use(validThreadID)

				r.Get("/", cfg.Threads.Get)
				r.Put("/", cfg.Threads.Update)
				r.Delete("/", cfg.Threads.Delete)

				r.Get("/messages", cfg.Messages.List)
				r.Post("/messages", cfg.Messages.Send)

				r.Get("/events", cfg.Events.Stream)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireStaff)

			r.Get("/users", cfg.Admin.ListUsers)
			r.Get("/system-prompt", cfg.Admin.GetSystemPrompt)
			r.Put("/system-prompt", cfg.Admin.UpdateSystemPrompt)
		})
	})

	if cfg.Relay != nil {
		r.Route("/agent/v1", func(r chi.Router) {
			authed(r)
			r.Post("/chat_stream", cfg.Relay.ChatStream)
		})
	}

	return r
}

func validThreadID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := middleware.ValidateThreadID(chi.URLParam(r, "id")); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}
