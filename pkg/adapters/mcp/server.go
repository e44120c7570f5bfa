// Package mcp exposes a strata workspace as a Model Context Protocol server,
// so that agents can run workflows and read layers and structures.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/aretw0/strata/pkg/workflow"
)

const runsURI = "strata://runs"

// Engine defines the operations the MCP server needs from a workspace.
// *strata.Engine satisfies it.
type Engine interface {
	RunFile(ctx context.Context, ref string, opts workflow.RunOptions) (*domain.RunState, error)
	Layer(ctx context.Context, id domain.LayerID) (domain.Layer, error)
	Chain(ctx context.Context, id domain.LayerID) ([]domain.Layer, error)
	Materialize(ctx context.Context, id domain.LayerID) (*domain.Structure, error)
	RunState(ctx context.Context, runID string) (*domain.RunState, error)
	Runs() ports.RunStore
}

var _ Engine = (*strata.Engine)(nil)

// RunResponse is the structured result of run_workflow and get_run.
type RunResponse struct {
	State *domain.RunState `json:"state" jsonschema_description:"The persisted state of the run"`
	Error string           `json:"error,omitempty" jsonschema_description:"Why the run stopped, when it failed"`
}

type runArgs struct {
	Path   string `json:"path"`
	RunID  string `json:"run_id"`
	Resume bool   `json:"resume"`
}

type runIDArgs struct {
	RunID string `json:"run_id"`
}

type layerArgs struct {
	ID int64 `json:"id"`
}

// Server wraps a strata Engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		logger:    logger,
		mcpServer: server.NewMCPServer("strata-mcp", strings.TrimSpace(strata.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the protocol over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_workflow",
		mcp.WithDescription("Run a workflow file of the workspace. A failed run can be continued with resume."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workflow file, relative to the workspace")),
		mcp.WithString("run_id", mcp.Description("Run identifier (generated when empty)")),
		mcp.WithBoolean("resume", mcp.Description("Continue a persisted run from its next step")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleRun))

	s.mcpServer.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Read the persisted state of a run: its tips, checkpoints and status."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run identifier")),
		mcp.WithOutputSchema[RunResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetRun))

	s.mcpServer.AddTool(mcp.NewTool("get_layer",
		mcp.WithDescription("Get a single layer: its parent and the operation it applies."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Layer id")),
	), s.jsonTool(func(ctx context.Context, id domain.LayerID) (any, error) {
		return s.engine.Layer(ctx, id)
	}))

	s.mcpServer.AddTool(mcp.NewTool("get_chain",
		mcp.WithDescription("Get the layers from the root down to a layer."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Layer id")),
	), s.jsonTool(func(ctx context.Context, id domain.LayerID) (any, error) {
		return s.engine.Chain(ctx, id)
	}))

	s.mcpServer.AddTool(mcp.NewTool("materialize",
		mcp.WithDescription("Get the full molecular structure a layer stands for."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Layer id")),
	), s.jsonTool(func(ctx context.Context, id domain.LayerID) (any, error) {
		return s.engine.Materialize(ctx, id)
	}))
}

func (s *Server) handleRun(ctx context.Context, request mcp.CallToolRequest, args runArgs) (RunResponse, error) {
	if args.Path == "" {
		return RunResponse{}, errors.New("path is required")
	}
	opts := workflow.RunOptions{RunID: args.RunID, Resume: args.Resume}
	if opts.RunID == "" {
		opts.RunID = workflow.NewRunID()
	}
	state, err := s.engine.RunFile(ctx, args.Path, opts)
	if state == nil {
		return RunResponse{}, fmt.Errorf("run failed: %w", err)
	}
	resp := RunResponse{State: state}
	if err != nil {
		s.logger.Warn("MCP run failed", "run_id", opts.RunID, "err", err)
		resp.Error = err.Error()
	}
	return resp, nil
}

func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest, args runIDArgs) (RunResponse, error) {
	state, err := s.engine.RunState(ctx, args.RunID)
	if err != nil {
		return RunResponse{}, err
	}
	return RunResponse{State: state}, nil
}

// jsonTool adapts a lookup by layer id into a tool returning indented JSON.
func (s *Server) jsonTool(get func(context.Context, domain.LayerID) (any, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args layerArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.ID <= 0 {
			return mcp.NewToolResultError("id must be a positive layer id"), nil
		}
		v, err := get(ctx, domain.LayerID(args.ID))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(runsURI, "Persisted runs",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids := []string{}
		if runs := s.engine.Runs(); runs != nil {
			list, err := runs.List(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list runs: %w", err)
			}
			ids = append(ids, list...)
		}
		jsonBytes, _ := json.Marshal(ids)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      runsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
