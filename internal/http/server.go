package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"celldb/pkg/config"
	"celldb/pkg/dberrors"
	"celldb/pkg/metrics"
	"celldb/pkg/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	contentTypeJSON        = "application/json"
	headerRequestID        = "X-Request-Id"
	defaultShutdownTimeout = time.Second * 5
	defaultRangeLimit      = 100
	maxRangeLimit          = 10_000
)

type iStoreAPI interface {
	GetString(key string) (string, bool, error)
	PutString(key, value string) error
	DeleteString(key string) error
	ScanAll(from []byte, limit int) ([]store.KV, error)
	Flush() error
	Compact() error
	Stats() (store.Stats, error)
}

// Server exposes a store over HTTP.
type Server struct {
	store      iStoreAPI
	registry   *metrics.Registry
	httpServer *http.Server
	URL        string
	addr       string

	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
}

// NewServer creates a new server instance
func NewServer(store iStoreAPI, cfg config.ServerConfig) *Server {
	port := strconv.Itoa(cfg.Port)
	s := &Server{
		store:             store,
		URL:               "http://localhost:" + port,
		addr:              ":" + port,
		readHeaderTimeout: cfg.ReadHeaderTimeout,
		shutdownTimeout:   cfg.ShutdownTimeout,
		registry:          metrics.NewRegistry(),
	}
	if s.readHeaderTimeout <= 0 {
		s.readHeaderTimeout = time.Second
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = defaultShutdownTimeout
	}
	return s
}

// SetRegistry makes /metrics serve the series collected by reg.
func (s *Server) SetRegistry(reg *metrics.Registry) {
	if reg != nil {
		s.registry = reg
	}
}

// Start starts the server
func (s *Server) Start() error {
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

// createRouter builds chi router
func (s *Server) createRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, logRequests, middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/string", s.handleGet)
		r.Put("/string", s.handlePut)
		r.Delete("/string", s.handleDelete)
		r.Get("/range", s.handleRange)

		r.Post("/admin/flush", s.handleFlush)
		r.Post("/admin/compact", s.handleCompact)
	})

	return r
}

func (s *Server) startHTTPServer() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.createRouter(),
		ReadHeaderTimeout: s.readHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("HTTP server started", "addr", s.URL)
	return nil
}

// requestID propagates the caller's request id or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(headerRequestID, id)
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r)
	})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", r.Header.Get(headerRequestID),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dberrors.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, dberrors.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.registry.SetGauge("celldb_memtable_bytes", nil, float64(stats.MemtableBytes))
	s.registry.SetGauge("celldb_memtable_entries", nil, float64(stats.MemtableEntries))
	promhttp.HandlerFor(s.registry.Gatherer(), promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}).ServeHTTP(w, r)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Failed to parse form"))
		return
	}

	key := r.FormValue("key")
	if key == "" || !r.Form.Has("value") {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key or value"))
		return
	}

	if err := s.store.PutString(key, r.FormValue("value")); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	value, found, err := s.store.GetString(key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		s.writeJSON(w, http.StatusNotFound, NewErrorResponse("Key not found"))
		return
	}

	s.writeJSON(w, http.StatusOK, NewValueResponse(value))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Missing key"))
		return
	}

	if err := s.store.DeleteString(key); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := defaultRangeLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRangeLimit {
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid limit"))
			return
		}
		limit = n
	}

	kvs, err := s.store.ScanAll([]byte(query.Get("from")), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	entries := make([]Entry, 0, len(kvs))
	for _, kv := range kvs {
		entries = append(entries, Entry{Key: string(kv.Key), Value: string(kv.Value)})
	}
	s.writeJSON(w, http.StatusOK, NewEntriesResponse(entries))
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Flush(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Compact(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}
