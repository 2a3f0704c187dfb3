package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/pdfchat-server/internal/records"
	"github.com/bull/pdfchat-server/internal/retrieval"
	"github.com/bull/pdfchat-server/internal/service"
)

// Backend is the subset of service.Service the tools call.
type Backend interface {
	Search(ctx context.Context, query string, documentIDs []string, k int) ([]retrieval.Match, error)
	ListDocuments(ctx context.Context) ([]*records.Document, error)
	GetDocument(ctx context.Context, id string) (*records.Document, error)
	DocumentSummary(ctx context.Context, id string) (service.DocumentSummary, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server  *mcp.Server
	backend Backend
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(backend Backend, version string) *Server {
	if version == "" {
		version = "dev"
	}
	impl := &mcp.Implementation{
		Name:    "pdfchat-server",
		Version: version,
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Search uploaded PDF documents semantically. Returns matching passages with their document and 1-based page number.",
	}, makeSearchHandler(backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List all uploaded PDF documents with their indexing status and word count.",
	}, makeListHandler(backend))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document_summary",
		Description: "Get a markdown summary and section outline of one document. Summaries are generated on first request and cached.",
	}, makeSummaryHandler(backend))

	return &Server{
		server:  server,
		backend: backend,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
