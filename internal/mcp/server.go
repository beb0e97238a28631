package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/regs-mcp/internal/embedder"
	"github.com/dshills/regs-mcp/internal/indexer"
	"github.com/dshills/regs-mcp/internal/logger"
	"github.com/dshills/regs-mcp/internal/metrics"
	"github.com/dshills/regs-mcp/internal/searcher"
	"github.com/dshills/regs-mcp/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "regs-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Deps are the components the server exposes. Embedder may be nil.
type Deps struct {
	Storage  storage.Storage
	Embedder embedder.Embedder
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	embedder embedder.Embedder
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewServer creates a new MCP server over deps and registers its tools
func NewServer(deps Deps) (*Server, error) {
	if deps.Storage == nil || deps.Indexer == nil || deps.Searcher == nil {
		return nil, errors.New("storage, indexer and searcher are required")
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		storage:  deps.Storage,
		embedder: deps.Embedder,
		indexer:  deps.Indexer,
		searcher: deps.Searcher,
		metrics:  deps.Metrics,
		log:      logger.Component(deps.Logger, "mcp"),
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info().Str("version", ServerVersion).Msg("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{listDocumentsTool(), s.handleListDocuments},
		{getTocTool(), s.handleGetToc},
		{searchTocTool(), s.handleSearchToc},
		{searchExpandedTool(), s.handleSearchExpanded},
		{searchDocumentsTool(), s.handleSearchDocuments},
		{getReferenceContentTool(), s.handleGetReferenceContent},
		{extractReferencesTool(), s.handleExtractReferences},
		{importTocTool(), s.handleImportToc},
		{embedTocTool(), s.handleEmbedToc},
		{logQueryTool(), s.handleLogQuery},
		{getStatusTool(), s.handleGetStatus},
	}

	for _, t := range tools {
		s.mcp.AddTool(t.tool, s.instrument(t.tool.Name, t.handler))
	}
}

// instrument records metrics and a log line for every tool call
func (s *Server) instrument(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		done := s.metrics.TrackTool(name)

		result, err := h(ctx, request)
		done(err)

		event := s.log.Debug()
		if err != nil {
			event = s.log.Warn().Err(err)
		}
		event.Str("tool", name).Dur("duration", time.Since(start)).Msg("tool call")
		return result, err
	}
}
