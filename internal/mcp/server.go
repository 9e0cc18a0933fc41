package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/browserlog/internal/extract"
)

// Extractor runs one extraction. *extract.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, opts extract.Options) (*extract.Result, error)
}

// Server exposes extraction as MCP tools.
type Server struct {
	mcp       *mcp.Server
	extractor Extractor
	defaults  extract.Options
	metrics   *Metrics
	logger    *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "browserlog")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// Metrics records tool invocations. Nil uses the global meter.
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "browserlog",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server. defaults are the extraction options tool
// arguments override.
func NewServer(cfg *Config, extractor Extractor, defaults extract.Options) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil, logger)
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		extractor: extractor,
		defaults:  defaults,
		metrics:   metrics,
		logger:    logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
