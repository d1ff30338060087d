package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/trigger"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Server is an MCP server backed by a trigger.Handler.
type Server struct {
	mcp        *mcp.Server
	handler    *trigger.Handler
	store      vectorstore.Store
	collection string
	metrics    *toolMetrics
	logger     *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "ragd").
	Name    string
	Version string

	// Collection is reported by collection_info.
	Collection string

	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:       "ragd",
		Version:    "dev",
		Collection: "docs",
		Logger:     logging.NewNop(),
	}
}

// NewServer creates the server and registers its tools. store may be nil,
// in which case collection_info is not offered.
func NewServer(cfg *Config, handler *trigger.Handler, store vectorstore.Store) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	name := cfg.Name
	if name == "" {
		name = "ragd"
	}

	s := &Server{
		mcp:        mcp.NewServer(&mcp.Implementation{Name: name, Version: cfg.Version}, nil),
		handler:    handler,
		store:      store,
		collection: cfg.Collection,
		metrics:    defaultToolMetrics(logger),
		logger:     logger.Named("mcp"),
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
