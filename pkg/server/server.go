// Package server assembles the merchantd HTTP API: the chi router, its
// middleware stack, and the handlers that translate requests into command
// executions.
package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/merchantd/merchantd/internal/export"
	"github.com/merchantd/merchantd/internal/middleware"
	"github.com/merchantd/merchantd/internal/ratelimit"
	"github.com/merchantd/merchantd/pkg/cache"
	"github.com/merchantd/merchantd/pkg/logger"
	"github.com/merchantd/merchantd/pkg/server/commands"
	serverErrors "github.com/merchantd/merchantd/pkg/server/errors"
	"github.com/merchantd/merchantd/pkg/storage"
)

// A Server serves the merchantd API over HTTP.
type Server struct {
	logger    logger.Logger
	datastore storage.Datastore
	cache     *cache.TieredCache
	cursors   *commands.CursorCodec
	limiter   *ratelimit.Limiter
	config    *Config
}

// Dependencies are the long-lived resources the server is wired against.
// Cache, CursorCodec and Limiter are optional: a nil cache disables the read
// cache, a nil codec falls back to unencrypted cursors, and a nil limiter
// leaves the export routes ungated.
type Dependencies struct {
	Datastore   storage.Datastore
	Logger      logger.Logger
	Cache       *cache.TieredCache
	CursorCodec *commands.CursorCodec
	Limiter     *ratelimit.Limiter
}

// Config carries the request-time knobs the handlers need.
type Config struct {
	// ExportSafeguards is the server-side ceiling for export streams. A
	// client max_records override can only lower it.
	ExportSafeguards export.Safeguards

	// MaxRecordsPerBulkRequest caps the records one bulk request may carry.
	MaxRecordsPerBulkRequest int

	// BulkBatchSize is the per-chunk row count for bulk requests that do not
	// carry their own batch_size.
	BulkBatchSize int

	// DefaultPageSize is served when a list request omits page_size.
	DefaultPageSize int32

	// MaxPageSize silently clamps any larger client page_size.
	MaxPageSize int32

	// RateLimitPartitionBy selects the partition key source for the export
	// rate limit: 'user', 'api-key' or 'ip'.
	RateLimitPartitionBy string

	// EnableRequestHistograms turns on per-route duration histograms in the
	// logging middleware.
	EnableRequestHistograms bool

	CORSAllowedOrigins []string
	CORSAllowedHeaders []string
}

// New creates a new Server which uses the supplied backends for serving data.
// Zero-valued bounds in config fall back to the package defaults.
func New(deps *Dependencies, config *Config) *Server {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.ExportSafeguards.MaxRecords <= 0 {
		cfg.ExportSafeguards.MaxRecords = export.DefaultMaxRecords
	}
	if cfg.ExportSafeguards.FlushInterval <= 0 {
		cfg.ExportSafeguards.FlushInterval = export.DefaultFlushInterval
	}
	if cfg.MaxRecordsPerBulkRequest <= 0 {
		cfg.MaxRecordsPerBulkRequest = storage.DefaultMaxRecordsPerBulkUpdate
	}
	if cfg.BulkBatchSize <= 0 {
		cfg.BulkBatchSize = storage.DefaultBulkBatchSize
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = storage.DefaultPageSize
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = storage.MaxPageSize
	}

	s := &Server{
		logger:    deps.Logger,
		datastore: deps.Datastore,
		cache:     deps.Cache,
		cursors:   deps.CursorCodec,
		limiter:   deps.Limiter,
		config:    &cfg,
	}
	if s.logger == nil {
		s.logger = logger.NewNoopLogger()
	}
	if s.cursors == nil {
		s.cursors = commands.NewPlainCursorCodec()
	}
	return s
}

// Handler builds the routing tree. The export routes sit in their own group
// behind the rate limiter; everything else shares the base middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger, middleware.RequestLoggerOpts{
		EnableDurationHistograms: s.config.EnableRequestHistograms,
	}))
	r.Use(middleware.Recoverer(s.logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.config.CORSAllowedOrigins,
		AllowedHeaders: s.config.CORSAllowedHeaders,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete,
		},
	}).Handler)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/v1/products", func(r chi.Router) {
		r.Get("/", s.handleListProducts)
		r.Post("/", s.handleCreateProduct)
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(middleware.RateLimit(
					s.limiter,
					middleware.NewPartitionExtractor(s.config.RateLimitPartitionBy),
					s.logger,
				))
			}
			r.Get("/export", s.handleExportProducts)
		})
		r.Post("/bulk", s.handleBulkUpdateProducts)
		r.Get("/{id}", s.handleGetProduct)
		r.Patch("/{id}", s.handleUpdateProduct)
		r.Delete("/{id}", s.handleDeleteProduct)
	})

	r.Route("/v1/orders", func(r chi.Router) {
		r.Get("/", s.handleListOrders)
		r.Post("/", s.handleCreateOrder)
		r.Group(func(r chi.Router) {
			if s.limiter != nil {
				r.Use(middleware.RateLimit(
					s.limiter,
					middleware.NewPartitionExtractor(s.config.RateLimitPartitionBy),
					s.logger,
				))
			}
			r.Get("/export", s.handleExportOrders)
		})
		r.Post("/bulk", s.handleBulkUpdateOrders)
		r.Get("/{id}", s.handleGetOrder)
		r.Patch("/{id}", s.handleUpdateOrder)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status, err := s.datastore.IsReady(r.Context())
	if err != nil || !status.IsReady {
		s.logger.WarnWithContext(r.Context(), "datastore is not ready", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	message := status.Message
	if message == "" {
		message = "ok"
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response body", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	serverErrors.FromError(err).WriteResponse(w)
}

func decodeJSONBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return serverErrors.NewValidationError("request body is not valid JSON")
	}
	return nil
}

// parsePageParams decodes page_size and offset, applying the configured
// default when page_size is absent and clamping values above the configured
// maximum. An explicit non-positive value is a client error. Offset presence
// selects the legacy mode, so "set to zero" and "absent" must stay
// distinguishable.
func (s *Server) parsePageParams(q url.Values) (int32, *int32, error) {
	pageSize := s.config.DefaultPageSize
	if raw := q.Get("page_size"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			return 0, nil, serverErrors.NewValidationError("page_size must be a positive integer")
		}
		pageSize = int32(n)
	}
	if pageSize > s.config.MaxPageSize {
		pageSize = s.config.MaxPageSize
	}

	var offset *int32
	if q.Has("offset") {
		n, err := strconv.ParseInt(q.Get("offset"), 10, 32)
		if err != nil || n < 0 {
			return 0, nil, serverErrors.NewValidationError("offset must be a non-negative integer")
		}
		v := int32(n)
		offset = &v
	}

	return pageSize, offset, nil
}

func parseMaxRecords(q url.Values) (int, error) {
	raw := q.Get("max_records")
	if raw == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, serverErrors.NewValidationError("max_records must be an integer")
	}
	return n, nil
}
