package mcpserver

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/edvin/devtunnel/internal/core"
)

const (
	serverName    = "devtunnel"
	serverVersion = "1.0.0"
)

// Server exposes the route engine as MCP tools over streamable HTTP.
type Server struct {
	handler http.Handler
	tools   []server.ServerTool
	logger  zerolog.Logger
}

// New builds the MCP server. Tool calls go straight to the core services.
func New(services *core.Services, cfg *Config, logger zerolog.Logger) *Server {
	logger = logger.With().Str("component", "mcp").Logger()
	tools := buildTools(services, cfg, logger)

	mcpSrv := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithInstructions(cfg.Instructions),
		server.WithToolCapabilities(false),
	)
	mcpSrv.AddTools(tools...)

	logger.Info().Int("tools", len(tools)).Msg("mounted MCP tools")

	return &Server{
		handler: server.NewStreamableHTTPServer(mcpSrv, server.WithEndpointPath("/mcp")),
		tools:   tools,
		logger:  logger,
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
