package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/isdelr/mealie-backup/internal/api/handlers"
	"github.com/isdelr/mealie-backup/internal/services"
	"github.com/isdelr/mealie-backup/internal/websocket"
)

// NewRouter creates and configures the read-only status router.
func NewRouter(hub *websocket.Hub, eventService services.EventServiceProvider) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	eventHandler := handlers.NewEventHandler(eventService)
	wsHandler := handlers.NewWebSocketHandler(hub)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", handlers.Health)
		r.Get("/events", eventHandler.GetRecent)
		r.Get("/ws", wsHandler.Serve)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
