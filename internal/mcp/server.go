package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/cwysong85/whenr-database/internal/indexer"
	"github.com/cwysong85/whenr-database/internal/searcher"
	"github.com/cwysong85/whenr-database/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "whenr"
)

// ServerVersion is the reported server version, set at build time
var ServerVersion = "dev"

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	writer   *indexer.Writer
	searcher *searcher.Searcher
	reindex  indexer.ReindexConfig
	logger   *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithReindexConfig sets the defaults used by the reindex tool
func WithReindexConfig(config indexer.ReindexConfig) Option {
	return func(s *Server) { s.reindex = config }
}

// NewServer creates a new MCP server instance. The caller owns store and
// closes it after Serve returns.
func NewServer(store storage.Storage, writer *indexer.Writer, srch *searcher.Searcher, opts ...Option) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		writer:   writer,
		searcher: srch,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.InfoContext(ctx, "serving MCP on stdio", "name", ServerName, "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	// Write ingress
	s.mcp.AddTool(upsertVenueTool(), s.handleUpsertVenue)
	s.mcp.AddTool(upsertEventTool(), s.handleUpsertEvent)
	s.mcp.AddTool(upsertOfferTool(), s.handleUpsertOffer)
	s.mcp.AddTool(deleteTool("delete_event", "event"), s.handleDeleteEvent)
	s.mcp.AddTool(deleteTool("delete_venue", "venue"), s.handleDeleteVenue)
	s.mcp.AddTool(deleteTool("delete_offer", "offer"), s.handleDeleteOffer)

	// Search ingress
	s.mcp.AddTool(searchEventsTool(), s.handleSearchEvents)

	// Maintenance
	s.mcp.AddTool(reindexTool(), s.handleReindex)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
