// Package httpserver provides the admin HTTP API for the publication dedup
// service.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rimdb/publication-dedup-service/internal/database"
	"github.com/rimdb/publication-dedup-service/internal/dedup"
	"github.com/rimdb/publication-dedup-service/internal/events"
	"github.com/rimdb/publication-dedup-service/internal/nondup"
	"github.com/rimdb/publication-dedup-service/internal/observability"
	"github.com/rimdb/publication-dedup-service/internal/repository"
)

// Merger is the merge entry point the server drives. *merge.Coordinator
// satisfies it.
type Merger interface {
	Merge(ctx context.Context, targetID uuid.UUID, sourceIDs []uuid.UUID) error
}

// GroupingRunner runs a full duplicate grouping scan. *dedup.Grouper
// satisfies it.
type GroupingRunner interface {
	GroupDuplicates(ctx context.Context) (dedup.Result, error)
}

// Server is the admin HTTP API server.
type Server struct {
	router  chi.Router
	httpSrv *http.Server

	grouper  GroupingRunner
	merger   Merger
	registry *nondup.Registry
	pubRepo  repository.PublicationRepository
	grpRepo  repository.GroupRepository
	emitter  events.Emitter
	db       *database.DB
	logger   zerolog.Logger

	metricsEnabled bool
	metricsPath    string
}

// Config holds HTTP server configuration.
type Config struct {
	Address        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MetricsEnabled bool
	MetricsPath    string
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(
	cfg Config,
	grouper GroupingRunner,
	merger Merger,
	registry *nondup.Registry,
	pubRepo repository.PublicationRepository,
	grpRepo repository.GroupRepository,
	emitter events.Emitter,
	db *database.DB,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		grouper:        grouper,
		merger:         merger,
		registry:       registry,
		pubRepo:        pubRepo,
		grpRepo:        grpRepo,
		emitter:        emitter,
		db:             db,
		logger:         logger.With().Str("component", "http-server").Logger(),
		metricsEnabled: cfg.MetricsEnabled,
		metricsPath:    cfg.MetricsPath,
	}

	s.router = s.buildRouter()

	s.httpSrv = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if s.metricsEnabled {
		path := s.metricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/admin/v1", func(r chi.Router) {
		r.Post("/duplicate-groups/rebuild", s.rebuildDuplicateGroups)
		r.Get("/duplicate-groups", s.listDuplicateGroups)
		r.Get("/duplicate-groups/{groupID}", s.getDuplicateGroup)

		r.Get("/publications/{publicationID}", s.getPublication)
		r.Post("/publications/{publicationID}/merge", s.mergePublications)

		r.Post("/non-duplicate-groups", s.createNonDuplicateGroup)
		r.Get("/non-duplicate-groups/{groupID}", s.getNonDuplicateGroup)
		r.Delete("/non-duplicate-groups/{groupID}", s.deleteNonDuplicateGroup)
	})

	return r
}

// Start starts the HTTP server. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpSrv.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpSrv.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// requestLogMiddleware logs one line per request, carrying the chi request
// ID so log lines can be correlated with responses.
func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := observability.WithRequestContext(s.logger, middleware.GetReqID(r.Context()), r.Method, r.URL.Path)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// jsonContentTypeMiddleware sets Content-Type: application/json for all responses.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
