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

	"github.com/aretw0/pipetree"
	"github.com/aretw0/pipetree/internal/logging"
	"github.com/aretw0/pipetree/internal/presentation/graph"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	stateURI = "pipetree://state"
	graphURI = "pipetree://graph"
)

// CommandResponse is the structured result of the send_command tool.
type CommandResponse struct {
	Event  string `json:"event" jsonschema_description:"The processed command"`
	UUID   string `json:"uuid,omitempty" jsonschema_description:"The node created or affected by the command"`
	DBID   string `json:"dbId,omitempty" jsonschema_description:"The persisted id assigned by save commands"`
	Locked bool   `json:"locked" jsonschema_description:"Whether the pipeline is busy after the command"`
}

// Engine defines the interface required by the MCP server to drive a pipeline.
type Engine interface {
	DoRaw(ctx context.Context, raw map[string]any) (domain.CommandResult, error)
	Projections() domain.Projections
	Locked() bool
}

// Server wraps the pipeline engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("pipetree-mcp", strings.TrimSpace(pipetree.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

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
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
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
	// TOOL: send_command
	sendTool := mcp.NewTool("send_command",
		mcp.WithDescription("Send one protocol command (initPipeline, runStep, addDynamicItem, ...) to the pipeline and wait for it to be processed."),
		mcp.WithString("event", mcp.Required(), mcp.Description("Command name, e.g. runStep")),
		mcp.WithString("payload", mcp.Description("JSON object with the command fields, e.g. {\"uuid\":\"...\"}")),
		mcp.WithOutputSchema[CommandResponse](),
	)
	s.mcpServer.AddTool(sendTool, mcp.NewStructuredToolHandler(s.handleSendCommand))

	// TOOL: get_projections
	s.mcpServer.AddTool(mcp.NewTool("get_projections",
		mcp.WithDescription("Get the current pipeline state with its consistency, validation and run-state projections."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := s.projectionsJSON()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})

	// TOOL: get_graph
	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the current pipeline as a Mermaid flowchart."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(graph.GenerateMermaid(s.engine.Projections())), nil
	})
}

func (s *Server) handleSendCommand(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (CommandResponse, error) {
	raw, err := commandFromArgs(args)
	if err != nil {
		return CommandResponse{}, err
	}

	res, err := s.engine.DoRaw(ctx, raw)
	if err != nil {
		s.logger.Warn("MCP command failed", "event", raw["event"], "error", err)
		return CommandResponse{}, fmt.Errorf("%v failed: %w", raw["event"], err)
	}
	return CommandResponse{
		Event:  res.Event,
		UUID:   res.UUID,
		DBID:   res.DBID,
		Locked: s.engine.Locked(),
	}, nil
}

// commandFromArgs merges the JSON payload and the event name into one protocol message.
func commandFromArgs(args map[string]interface{}) (map[string]any, error) {
	event, _ := args["event"].(string)
	if event == "" {
		return nil, fmt.Errorf("%w: missing event", domain.ErrProtocol)
	}

	raw := map[string]any{}
	switch payload := args["payload"].(type) {
	case nil:
	case string:
		if strings.TrimSpace(payload) != "" {
			if err := json.Unmarshal([]byte(payload), &raw); err != nil {
				return nil, fmt.Errorf("%w: payload is not a JSON object: %v", domain.ErrProtocol, err)
			}
		}
	case map[string]interface{}:
		for k, v := range payload {
			raw[k] = v
		}
	default:
		return nil, fmt.Errorf("%w: payload must be a JSON object", domain.ErrProtocol)
	}
	raw["event"] = event
	return raw, nil
}

func (s *Server) projectionsJSON() (string, error) {
	data, err := json.Marshal(s.engine.Projections())
	if err != nil {
		return "", fmt.Errorf("failed to encode projections: %w", err)
	}
	return string(data), nil
}

func (s *Server) registerResources() {
	// EXPOSE: pipetree://state
	s.mcpServer.AddResource(mcp.NewResource(stateURI, "Current Pipeline Projections",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		text, err := s.projectionsJSON()
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      stateURI,
				MIMEType: "application/json",
				Text:     text,
			},
		}, nil
	})

	// EXPOSE: pipetree://graph
	s.mcpServer.AddResource(mcp.NewResource(graphURI, "Current Pipeline Graph",
		mcp.WithMIMEType("text/vnd.mermaid"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      graphURI,
				MIMEType: "text/vnd.mermaid",
				Text:     graph.GenerateMermaid(s.engine.Projections()),
			},
		}, nil
	})
}
