package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nguyentantai21042004/meeting-recorder/internal/logger"
	"github.com/nguyentantai21042004/meeting-recorder/internal/metrics"
	"github.com/nguyentantai21042004/meeting-recorder/internal/models"
	"github.com/nguyentantai21042004/meeting-recorder/internal/store"
	"github.com/nguyentantai21042004/meeting-recorder/internal/upload"
)

// Sessions is the live session registry.
type Sessions interface {
	List() []models.Snapshot
	Get(id string) (models.Snapshot, bool)
}

// Workers lists the worker pool.
type Workers interface {
	Workers() []models.WorkerInfo
}

// Archive reads closed sessions.
type Archive interface {
	GetSession(ctx context.Context, id string) (*models.Snapshot, error)
	ListSessions(ctx context.Context, limit int) ([]models.Snapshot, error)
}

// UploadStatus reports the state of the cached upload connection.
type UploadStatus interface {
	Stats() upload.CacheStats
}

// Deps wire the router. Archive, Upload and Hub are optional.
type Deps struct {
	Sessions Sessions
	Workers  Workers
	Archive  Archive
	Upload   UploadStatus
	Hub      *Hub
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

type Server struct {
	secret string
	deps   Deps
	logger logger.Logger
}

// NewRouter builds the HTTP API. /healthz and /metrics are public; the
// rest requires a JWT signed with secret.
func NewRouter(secret string, deps Deps, log logger.Logger) http.Handler {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{secret: secret, deps: deps, logger: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(authed chi.Router) {
		authed.Use(authMiddleware(secret))
		authed.Route("/api/v1", func(v1 chi.Router) {
			v1.Get("/sessions", s.handleListSessions)
			v1.Get("/sessions/{id}", s.handleGetSession)
			v1.Get("/workers", s.handleWorkers)
			v1.Get("/upload", s.handleUpload)
		})
		if deps.Hub != nil {
			authed.Get("/ws", s.handleWS)
		}
	})
	return r
}

// instrument records request counts and latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if s.deps.Metrics == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.deps.Metrics.RecordHTTP(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") != "archive" {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": s.deps.Sessions.List()})
		return
	}
	if s.deps.Archive == nil {
		writeAPIError(w, http.StatusNotFound, "not_found", "session archive is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := s.deps.Archive.ListSessions(r.Context(), limit)
	if err != nil {
		s.logger.Error(r.Context(), "List archived sessions: %v", err)
		writeAPIError(w, http.StatusInternalServerError, "internal", "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []models.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if snap, ok := s.deps.Sessions.Get(id); ok {
		writeJSON(w, http.StatusOK, snap)
		return
	}
	if s.deps.Archive != nil {
		snap, err := s.deps.Archive.GetSession(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, snap)
			return
		case !errors.Is(err, store.ErrNotFound):
			s.logger.Error(r.Context(), "Get archived session %s: %v", id, err)
			writeAPIError(w, http.StatusInternalServerError, "internal", "failed to load session")
			return
		}
	}
	writeAPIError(w, http.StatusNotFound, "not_found", "session not found")
}

func (s *Server) handleWorkers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workers": s.deps.Workers.Workers()})
}

func (s *Server) handleUpload(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Upload == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"enabled": true, "cache": s.deps.Upload.Stats()})
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	var payload apiError
	payload.Error.Code = code
	payload.Error.Message = message
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
