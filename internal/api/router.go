package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/alwynblake/city-explorer/internal/metrics"
)

// RouterConfig carries the knobs NewRouter needs besides the handlers.
type RouterConfig struct {
	Token              string
	RateLimitPerMinute int
}

// NewRouter builds and returns the Chi router with all routes configured.
// /health and /metrics are unauthenticated; resource routes require bearer
// auth when a token is configured.
func NewRouter(handlers *Handlers, cfg RouterConfig, db dbPinger, redisClient redisPinger, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(metrics.Middleware)
	if cfg.RateLimitPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
	}

	r.Get("/health", HealthHandlerFunc(db, redisClient, log))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.Token))
		r.Get("/location", handlers.GetLocation)
		r.Get("/weather", handlers.GetWeather)
		r.Get("/yelp", handlers.GetRestaurants)
		r.Get("/movies", handlers.GetMovies)
		r.Get("/meetups", handlers.GetMeetups)
		r.Get("/trails", handlers.GetTrails)
		r.Get("/summary", handlers.GetSummary)
	})

	return r
}
