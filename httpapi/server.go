// Package httpapi is optional admin scaffolding a host process can mount
// alongside the core bus/aggregate/repository/bridge packages, none of
// which import net/http themselves. Grounded on cmd/platform/main.go's chi
// router wiring (middleware stack, health/ready/metrics endpoints) and
// internal/shared/middleware/security.go's rate.Limiter-backed RateLimiter,
// generalized from a whole government-services API surface down to the
// handful of operational endpoints this module's own stream store needs.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/reactivedomain/reactivedomain/metrics"
	"github.com/reactivedomain/reactivedomain/streamstore"
	"github.com/reactivedomain/reactivedomain/telemetry"
)

// HealthChecker reports whether the backing stream store can be reached.
// streamstore.StreamStore itself has no Ping method since esdb.Client
// doesn't expose one cheaply; a host wires in whatever check fits its
// backend (kurrentdb.Store.StreamState against a well-known stream,
// MemoryStreamStore's always-healthy zero cost check, or its own probe).
type HealthChecker func(ctx context.Context) error

// Server is the admin HTTP surface: health, Prometheus metrics, and a
// rate-limited debug stream reader. SliceSize bounds how many events
// /streams/{name} returns in one call, mirroring
// config.ConfiguredConnection.SliceSize.
type Server struct {
	Store         streamstore.StreamStore
	HealthChecker HealthChecker
	SliceSize     int

	router chi.Router
}

// NewServer builds a Server's router. SliceSize defaults to 100 when <= 0.
func NewServer(store streamstore.StreamStore, health HealthChecker, sliceSize int) *Server {
	if sliceSize <= 0 {
		sliceSize = 100
	}
	s := &Server{Store: store, HealthChecker: health, SliceSize: sliceSize}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", metrics.Handler())

	streamLimiter := rate.NewLimiter(rate.Limit(5), 10)
	r.With(rateLimit(streamLimiter)).Get("/streams/{name}", s.handleReadStream)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	log := telemetry.WithComponent("httpapi")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	if s.HealthChecker != nil {
		if err := s.HealthChecker(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]string{"status": "unavailable", "error": err.Error()}
		}
	}
	writeJSON(w, status, body)
}

type streamEvent struct {
	EventNumber int64           `json:"eventNumber"`
	EventType   string          `json:"eventType"`
	Data        json.RawMessage `json:"data"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

func (s *Server) handleReadStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		http.Error(w, "missing stream name", http.StatusBadRequest)
		return
	}

	result, err := s.Store.ReadStreamForward(r.Context(), name, 0, s.SliceSize)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	events := make([]streamEvent, 0, len(result.Events))
	for _, e := range result.Events {
		meta, err := e.Metadata.MarshalJSON()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		events = append(events, streamEvent{
			EventNumber: e.EventNumber,
			EventType:   e.EventType,
			Data:        json.RawMessage(e.Data),
			Metadata:    meta,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stream":        name,
		"events":        events,
		"nextVersion":   result.NextVersion,
		"isEndOfStream": result.IsEndOfStream,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
