package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

// Server wraps the mcp-go MCPServer and the API client the tools call.
type Server struct {
	mcp    *server.MCPServer
	client *Client
	cfg    *Config
	logger *zap.Logger
}

// NewServer creates an MCP server with all knowledge tools registered.
func NewServer(name, version string, cfg *Config, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcp:    mcpServer,
		client: NewClient(cfg),
		cfg:    cfg,
		logger: logger,
	}
	s.registerTools()
	return s
}

// ServeStdio runs the server over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}
