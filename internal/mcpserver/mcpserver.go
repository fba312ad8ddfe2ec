package mcpserver

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/panbanda/acminer/internal/service/mining"
)

// Server wraps the MCP server and registers the acminer tools.
type Server struct {
	server *mcp.Server
	mining *mining.Service
}

// NewServer creates a new MCP server with all acminer tools registered.
// A nil svc uses a service with the configuration found on disk.
func NewServer(version string, svc *mining.Service) *Server {
	if version == "" {
		version = "dev"
	}
	if svc == nil {
		svc = mining.New()
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "acminer",
			Version: version,
		},
		nil,
	)

	s := &Server{server: server, mining: svc}
	s.registerTools()
	s.registerPrompts()
	return s
}

// Run starts the MCP server over stdio transport.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// registerTools adds the graph tools to the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "count_resolutions",
		Description: describeCountResolutions(),
	}, s.handleCountResolutions)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "show_definitions",
		Description: describeShowDefinitions(),
	}, s.handleShowDefinitions)
}
