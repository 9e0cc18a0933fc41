// Package http provides the HTTP API for browserlog.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/browserlog/internal/classify"
	"github.com/fyrsmithlabs/browserlog/internal/extract"
	"github.com/fyrsmithlabs/browserlog/internal/secrets"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Extractor runs one extraction. *extract.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, opts extract.Options) (*extract.Result, error)
}

// Server provides HTTP endpoints for browserlog.
type Server struct {
	echo      *echo.Echo
	extractor Extractor
	defaults  extract.Options
	scrubber  secrets.Scrubber
	tracer    trace.Tracer
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Option configures a Server.
type Option func(*Server)

// WithScrubber serves POST /api/v1/scrub with s.
func WithScrubber(s secrets.Scrubber) Option {
	return func(srv *Server) {
		srv.scrubber = s
	}
}

// WithTracer traces each request.
func WithTracer(t trace.Tracer) Option {
	return func(srv *Server) {
		srv.tracer = t
	}
}

// WithMetrics records OTel request metrics.
func WithMetrics(m *HTTPMetrics) Option {
	return func(srv *Server) {
		srv.echo.Use(m.MetricsMiddleware())
	}
}

// NewServer creates a new HTTP server. defaults are the extraction options
// a request body overrides.
func NewServer(extractor Extractor, defaults extract.Options, logger *zap.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8089,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:      e,
		extractor: extractor,
		defaults:  defaults,
		scrubber:  secrets.NoopScrubber{},
		logger:    logger,
		config:    cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = noop.NewTracerProvider().Tracer(instrumentationName)
	}
	e.Use(s.traceMiddleware)

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/extract", s.handleExtract)
	v1.POST("/classify", s.handleClassify)
	v1.POST("/scrub", s.handleScrub)
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) traceMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx, span := s.tracer.Start(req.Context(), "http "+req.Method+" "+normalizePath(c.Path()),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", req.Method),
				attribute.String("http.route", normalizePath(c.Path())),
			),
		)
		defer span.End()
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleExtract(c echo.Context) error {
	var req ExtractRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			s.logger.Warn("invalid extract request", zap.Error(err))
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}

	opts, err := req.apply(s.defaults)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := s.extractor.Extract(c.Request().Context(), opts)
	if err != nil && result == nil {
		return s.extractError(err)
	}

	resp := ExtractResponse{Result: result}
	if err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// extractError maps a failed extraction to a status. Failures to reach the
// browser are the upstream's fault.
func (s *Server) extractError(err error) error {
	body := ErrorResponse{Error: err.Error()}
	if class, ok := classify.ClassifyError(err); ok {
		body.Classification = &class
	}

	status := http.StatusInternalServerError
	if isUpstream(err) {
		status = http.StatusBadGateway
	}
	return echo.NewHTTPError(status, body).SetInternal(err)
}

func (s *Server) handleClassify(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message field is required")
	}

	class, known := classify.Classify(req.Message)
	resp := ClassifyResponse{Known: known}
	if known {
		resp.Classification = &class
		resp.Suppressed = classify.ShouldSuppress(class)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleScrub(c echo.Context) error {
	var req ScrubRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid scrub request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}

	result := s.scrubber.Scrub(req.Content)
	s.logger.Debug("scrubbed content", zap.Int("findings", result.TotalFindings))

	return c.JSON(http.StatusOK, ScrubResponse{
		Content:       result.Scrubbed,
		FindingsCount: result.TotalFindings,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
