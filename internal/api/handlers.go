package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alwynblake/city-explorer/internal/explorer"
	"github.com/alwynblake/city-explorer/internal/lookup"
)

// internalErrorBody is sent for every failure the client cannot fix.
const internalErrorBody = "Sorry - Something Broke"

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	svc Service
	log *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(svc Service, log *slog.Logger) *Handlers {
	return &Handlers{
		svc: svc,
		log: log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a plaintext response and logs it.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, resource string, err error) {
	switch {
	case errors.Is(err, explorer.ErrNotFound):
		h.log.Info("no data", "resource", resource, "err", err)
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, errBadRequest), errors.Is(err, lookup.ErrUnsavedLocation):
		h.log.Warn("bad request", "resource", resource, "query", r.URL.RawQuery, "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("request failed", "resource", resource, "err", err)
		http.Error(w, internalErrorBody, http.StatusInternalServerError)
	}
}

// GetLocation handles GET /location?data=<search query>.
func (h *Handlers) GetLocation(w http.ResponseWriter, r *http.Request) {
	query, err := queryParam(r.URL.Query())
	if err != nil {
		h.writeError(w, r, "location", err)
		return
	}

	loc, err := h.svc.ResolveLocation(r.Context(), query)
	if err != nil {
		h.writeError(w, r, "location", err)
		return
	}

	writeJSON(w, http.StatusOK, loc)
}

// resourceHandler decodes the location parameter, runs get and writes its result.
func resourceHandler[R any](h *Handlers, resource string, get func(ctx context.Context, loc explorer.Location) (R, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := locationParam(r.URL.Query())
		if err != nil {
			h.writeError(w, r, resource, err)
			return
		}

		out, err := get(r.Context(), loc)
		if err != nil {
			h.writeError(w, r, resource, err)
			return
		}

		writeJSON(w, http.StatusOK, out)
	}
}

// GetWeather handles GET /weather?data=<location>.
func (h *Handlers) GetWeather(w http.ResponseWriter, r *http.Request) {
	resourceHandler(h, "weather", h.svc.Weather)(w, r)
}

// GetRestaurants handles GET /yelp?data=<location>.
func (h *Handlers) GetRestaurants(w http.ResponseWriter, r *http.Request) {
	resourceHandler(h, "restaurants", h.svc.Restaurants)(w, r)
}

// GetMovies handles GET /movies?data=<location>.
func (h *Handlers) GetMovies(w http.ResponseWriter, r *http.Request) {
	resourceHandler(h, "movies", h.svc.Movies)(w, r)
}

// GetMeetups handles GET /meetups?data=<location>.
func (h *Handlers) GetMeetups(w http.ResponseWriter, r *http.Request) {
	resourceHandler(h, "meetups", h.svc.Meetups)(w, r)
}

// GetTrails handles GET /trails?data=<location>.
func (h *Handlers) GetTrails(w http.ResponseWriter, r *http.Request) {
	resourceHandler(h, "trails", h.svc.Trails)(w, r)
}

// GetSummary handles GET /summary?data=<location>.
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	resourceHandler(h, "summary", h.svc.Summary)(w, r)
}

type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis connectivity.
// It answers 200 when both respond and 503 otherwise.
func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "ok"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if err := redis.Ping(ctx); err != nil {
			log.Error("health check: redis ping failed", "err", err)
			redisStatus = "error"
			status = http.StatusServiceUnavailable
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}

		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}
