package mcp

import (
	"context"
	"io"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// NewServer builds an MCP server exposing s as tools.
func NewServer(s Session) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		"jamq",
		Version,
		mcpserver.WithToolCapabilities(true),
	)
	RegisterTools(srv, s)
	return srv
}

// Serve runs the MCP stdio server until ctx is canceled or in is closed.
func Serve(ctx context.Context, s Session, in io.Reader, out io.Writer) error {
	stdioSrv := mcpserver.NewStdioServer(NewServer(s))
	return stdioSrv.Listen(ctx, in, out)
}
