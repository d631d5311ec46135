package server

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tiptally/tiptally/internal/cache"
	"github.com/tiptally/tiptally/internal/common"
	"github.com/tiptally/tiptally/internal/pipeline"
)

// Server exposes the extraction pipeline over HTTP. It is glue only:
// all semantics live in the pipeline packages.
type Server struct {
	logger         *slog.Logger
	coordinator    *pipeline.Coordinator
	cache          *cache.ContentCache
	maxUploadBytes int64
	mux            *http.ServeMux
}

func New(logger *slog.Logger, coordinator *pipeline.Coordinator, c *cache.ContentCache, maxUploadBytes int64) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	s := &Server{
		logger:         logger,
		coordinator:    coordinator,
		cache:          c,
		maxUploadBytes: maxUploadBytes,
		mux:            http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/extract", s.handleExtract)
	s.mux.HandleFunc("POST /api/extract/batch", s.handleExtractBatch)
	s.mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("POST /api/cache/flush", s.handleCacheFlush)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// ServeHTTP tags every request with an ID and logs the access line.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.New().String()
	ctx := common.WithRequestID(r.Context(), reqID)
	w.Header().Set("X-Request-Id", reqID)

	s.logger.Debug("http.request", "req_id", reqID, "method", r.Method, "path", r.URL.Path)
	s.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
