// Package main provides the API router setup.
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/minerva-reviews/review-engine/cmd/review-engine-api/handlers"
	"github.com/minerva-reviews/review-engine/cmd/review-engine-api/middleware"
	"github.com/minerva-reviews/review-engine/internal/observability"
	"github.com/minerva-reviews/review-engine/internal/query"
)

// RouterDeps holds what the router serves.
type RouterDeps struct {
	Logger         *observability.Logger
	Assistant      handlers.Assistant
	Classifier     query.Classifier
	Ready          handlers.ReadyFunc
	Gatherer       prometheus.Gatherer // nil disables /metrics
	ServiceName    string
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 90 * time.Second
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(deps.AllowedOrigins))

	health := handlers.NewHealthHandler(deps.ServiceName, deps.Ready)
	r.Get("/health", health.Health)
	r.Get("/ready", health.Ready)

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	chatHandler := handlers.NewChatHandler(deps.Logger, deps.Assistant)
	queryHandler := handlers.NewQueryHandler(deps.Logger, deps.Classifier, deps.Assistant)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(deps.RequestTimeout))

		r.Post("/chat", chatHandler.Chat)
		r.Post("/context", queryHandler.Context)
		r.Route("/query", func(r chi.Router) {
			r.Post("/classify", queryHandler.Classify)
		})
	})

	return r
}
