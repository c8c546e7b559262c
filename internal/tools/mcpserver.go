package tools

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opensuperagent/superagent/internal/errs"
)

// NewMCPServer exposes the registry tools matching patterns as an MCP
// server.
func NewMCPServer(r *Registry, version string, patterns ...string) *server.MCPServer {
	s := server.NewMCPServer("superagent", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, def := range r.Definitions(patterns...) {
		s.AddTool(def, mcpHandler(r, def.Name))
	}
	return s
}

func mcpHandler(r *Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := json.RawMessage("{}")
		if raw := req.GetRawArguments(); raw != nil {
			bts, err := json.Marshal(raw)
			if err != nil {
				return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
			}
			args = bts
		}
		out, err := r.Call(ctx, name, args)
		if err != nil {
			return mcp.NewToolResultErrorFromErr(errs.ReasonOf(err), err), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// ServeStdio serves s over in and out until ctx is done.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}
