package cli

import (
	"context"

	"github.com/aretw0/strata/pkg/adapters/mcp"
)

// MCPOptions configures the MCP server command.
type MCPOptions struct {
	GlobalOptions
	// Dir is the workspace that run_workflow resolves paths against.
	Dir    string
	DBPath string
	// SSEAddr serves over SSE instead of stdio when set.
	SSEAddr string
}

// ServeMCP exposes the workspace as a Model Context Protocol server. Logs go
// to stderr so that stdout stays reserved for the protocol.
func ServeMCP(ctx context.Context, opts MCPOptions) error {
	cfg, err := loadConfig(opts.GlobalOptions, opts.DBPath, 0)
	if err != nil {
		return err
	}
	logger := createLogger(opts.GlobalOptions)
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	ws, err := openWorkspace(ctx, cfg, factoryOptions{Dir: dir, Logger: logger})
	if err != nil {
		return err
	}
	defer ws.Close()

	srv := mcp.NewServer(ws.Engine, logger)
	if opts.SSEAddr != "" {
		return srv.ServeSSE(ctx, opts.SSEAddr)
	}
	return srv.ServeStdio()
}
