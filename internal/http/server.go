// Package http exposes the pipelines over a JSON HTTP API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/telemetry"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// UploadDir receives files posted to /api/v1/upload.
	UploadDir   string
	MaxUploadMB int
	Collection  string
	Version     string
	// Dispatch names the dispatch mode reported by /api/v1/status.
	Dispatch string
	// TelemetryHealth, when set, feeds the exporter state into /api/v1/status.
	TelemetryHealth func() telemetry.HealthStatus
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	handler *trigger.Handler
	store   vectorstore.Store
	logger  *logging.Logger
	config  *Config
}

// NewServer creates a new HTTP server. store is optional and only feeds
// /api/v1/status.
func NewServer(handler *trigger.Handler, store vectorstore.Store, logger *logging.Logger, cfg *Config) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8000}
	}
	if cfg.MaxUploadMB <= 0 {
		cfg.MaxUploadMB = 32
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(os.TempDir(), "ragd-uploads")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(defaultRequestMetrics(logger).middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	})

	s := &Server{
		echo:    e,
		handler: handler,
		store:   store,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
	v1.POST("/ingest", s.handleIngest)
	v1.POST("/query", s.handleQuery)
	v1.POST("/upload", s.handleUpload, middleware.BodyLimit(fmt.Sprintf("%dM", s.config.MaxUploadMB+1)))
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	resp := StatusResponse{Status: "ok", Version: s.config.Version, Dispatch: s.config.Dispatch}
	if s.store != nil && s.config.Collection != "" {
		resp.Collection = &CollectionStatus{Name: s.config.Collection, Points: -1}
		n, err := s.store.Count(c.Request().Context(), s.config.Collection)
		if err != nil {
			s.logger.Warn(c.Request().Context(), "collection count failed", zap.Error(err))
			resp.Status = "degraded"
		} else {
			resp.Collection.Points = n
		}
	}
	if s.config.TelemetryHealth != nil {
		if h := s.config.TelemetryHealth(); h.Enabled {
			resp.Telemetry = &h
			if h.Degraded {
				resp.Status = "degraded"
			}
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleIngest(c echo.Context) error {
	var req rag.IngestRequest
	if err := decodeJSON(c, &req); err != nil {
		return reply(c, http.StatusBadRequest, errdefs.KindOf(err), trigger.IngestResponse{Error: err.Error(), ErrorKind: errdefs.KindOf(err)})
	}
	resp := s.handler.Ingest(c.Request().Context(), req)
	return reply(c, statusFor(resp.ErrorKind), resp.ErrorKind, resp)
}

func (s *Server) handleQuery(c echo.Context) error {
	var req rag.QueryRequest
	if err := decodeJSON(c, &req); err != nil {
		return reply(c, http.StatusBadRequest, errdefs.KindOf(err), trigger.QueryResponse{Sources: []string{}, Error: err.Error(), ErrorKind: errdefs.KindOf(err)})
	}
	resp := s.handler.Query(c.Request().Context(), req)
	return reply(c, statusFor(resp.ErrorKind), resp.ErrorKind, resp)
}

// handleUpload stores a multipart "file" in UploadDir and ingests it. The
// source id defaults to the uploaded file name.
func (s *Server) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()
	fh, err := c.FormFile("file")
	if err != nil {
		return reply(c, http.StatusBadRequest, errdefs.KindConfiguration, trigger.IngestResponse{
			Error: "multipart field \"file\" is required", ErrorKind: errdefs.KindConfiguration,
		})
	}
	if fh.Size > int64(s.config.MaxUploadMB)<<20 {
		return reply(c, http.StatusRequestEntityTooLarge, errdefs.KindConfiguration, trigger.IngestResponse{
			Error: fmt.Sprintf("file exceeds %d MB", s.config.MaxUploadMB), ErrorKind: errdefs.KindConfiguration,
		})
	}

	name := filepath.Base(fh.Filename)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md", ".markdown":
	default:
		return reply(c, http.StatusUnsupportedMediaType, errdefs.KindConfiguration, trigger.IngestResponse{
			Error: fmt.Sprintf("unsupported file type %q", filepath.Ext(name)), ErrorKind: errdefs.KindConfiguration,
		})
	}

	path, err := s.saveUpload(fh, name)
	if err != nil {
		s.logger.Error(ctx, "saving upload failed", zap.Error(err))
		return reply(c, http.StatusInternalServerError, errdefs.KindUnknown, trigger.IngestResponse{Error: "saving upload failed", ErrorKind: errdefs.KindUnknown})
	}

	sourceID := strings.TrimSpace(c.FormValue("source_id"))
	if sourceID == "" {
		sourceID = name
	}
	resp := s.handler.Ingest(ctx, rag.IngestRequest{PDFPath: path, SourceID: sourceID})
	return reply(c, statusFor(resp.ErrorKind), resp.ErrorKind, resp)
}

func (s *Server) saveUpload(fh *multipart.FileHeader, name string) (string, error) {
	if err := os.MkdirAll(s.config.UploadDir, 0o750); err != nil {
		return "", err
	}
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := filepath.Join(s.config.UploadDir, uuid.NewString()+"-"+name)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

func decodeJSON(c echo.Context, v any) error {
	dec := json.NewDecoder(io.LimitReader(c.Request().Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		if errdefs.KindOf(err) == errdefs.KindConfiguration {
			return err
		}
		if errors.Is(err, io.EOF) {
			return errdefs.Configf("body", "empty request body")
		}
		return errdefs.Configf("body", "invalid JSON: %v", err)
	}
	return nil
}

// statusFor maps an error kind to an HTTP status. An empty kind is success.
func statusFor(kind string) int {
	switch kind {
	case "":
		return http.StatusOK
	case errdefs.KindConfiguration:
		return http.StatusBadRequest
	case errdefs.KindSourceRead:
		return http.StatusUnprocessableEntity
	case errdefs.KindSchemaMismatch:
		return http.StatusConflict
	case errdefs.KindEmbeddingService, errdefs.KindStorage, errdefs.KindGenerationService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted or tested directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
