// Package httpapi wires the durable store, transaction tracker,
// summarizer, channel dispatcher, live-stream hub, and response store
// into the daemon's HTTP surface.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hgeldenhuys/trak/internal/auth"
	"github.com/hgeldenhuys/trak/internal/metrics"
	"github.com/hgeldenhuys/trak/internal/notify"
	"github.com/hgeldenhuys/trak/internal/responsestore"
	"github.com/hgeldenhuys/trak/internal/store"
	"github.com/hgeldenhuys/trak/internal/stream"
	"github.com/hgeldenhuys/trak/internal/summarizer"
	"github.com/hgeldenhuys/trak/internal/tracker"
)

// Server bundles every component the HTTP handlers depend on and exposes
// the routed http.Handler via Mount.
type Server struct {
	Store       *store.Store
	Tracker     *tracker.Tracker
	Summarizer  *summarizer.Summarizer
	Dispatcher  *notify.Dispatcher
	Hub         *stream.Hub
	Responses   *responsestore.Store
	AuthService *auth.Service
	Metrics     *metrics.Metrics
	RequireAuth bool
	PublicURL   string
	Port        int
	Logger      *slog.Logger

	mux *http.ServeMux
}

// NewServer constructs a Server and wires its routes.
func NewServer(s *Server) *Server {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	s.mux = http.NewServeMux()
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Public.
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /response/{id}", s.handleResponse)
	s.mux.HandleFunc("GET /audio/{id}", s.handleAudio)
	s.mux.HandleFunc("GET /project/{name}/latest-response", s.handleLatestResponse)

	// Protected.
	protected := http.NewServeMux()
	protected.HandleFunc("GET /queue", s.handleQueue)
	protected.HandleFunc("POST /notify", s.handleNotify)
	protected.HandleFunc("POST /events", s.handleEvents)
	protected.HandleFunc("GET /debug", s.handleDebugIndex)
	protected.HandleFunc("GET /debug/{project}", s.handleDebugStream)
	protected.HandleFunc("GET /debug/{project}/ui", s.handleDebugUI)

	authMiddleware := auth.Middleware(s.AuthService, s.RequireAuth, s.Logger)
	s.mux.Handle("/queue", authMiddleware(protected))
	s.mux.Handle("/notify", authMiddleware(protected))
	s.mux.Handle("/events", authMiddleware(protected))
	s.mux.Handle("/debug", authMiddleware(protected))
	s.mux.Handle("/debug/", authMiddleware(protected))
}

// Mount returns the fully routed handler with request logging and metrics
// instrumentation applied.
func (s *Server) Mount() http.Handler {
	h := loggingMiddleware(s.Logger)(s.mux)
	if s.Metrics != nil {
		h = metricsMiddleware(s.Metrics)(h)
	}
	return h
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		})
	}
}

// statusRecorder captures the status code written by the wrapped handler so
// metricsMiddleware can label requests by outcome.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rec.status)
			m.HTTPRequestDuration.WithLabelValues(r.Method, r.Pattern, status).Observe(duration)
			m.HTTPRequestCounter.WithLabelValues(r.Method, r.Pattern, status).Inc()
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsonEncode(w, body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.Hub.SubscriberCount(),
	})
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	pending, err := s.Store.GetPendingTransactions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	audioLen := 0
	if s.Dispatcher != nil {
		audioLen = s.Dispatcher.AudioQueueLen()
	}
	writeJSON(w, http.StatusOK, map[string]any{"pendingTransactions": pending, "audioQueueLength": audioLen})
}

func (s *Server) resolveResponseURL(id string) string {
	base := s.PublicURL
	if base == "" {
		base = "http://127.0.0.1:" + strconv.Itoa(s.Port)
	}
	return base + "/response/" + id
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp, ok := s.Responses.Get(id, time.Now())
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp, ok := s.Responses.Get(id, time.Now())
	if !ok || resp.AudioFilename == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, resp.AudioFilename)
}

func (s *Server) handleLatestResponse(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("name")
	resp, ok := s.Responses.LatestForProject(project, time.Now())
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// backgroundContext returns a fresh context for fire-and-forget work that
// must outlive the originating request.
func backgroundContext() context.Context { return context.Background() }
