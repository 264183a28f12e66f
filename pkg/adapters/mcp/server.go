package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	"github.com/ringwire/callflow/internal/logging"
	"github.com/ringwire/callflow/internal/presentation/graph"
	"github.com/ringwire/callflow/internal/validator"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
	"github.com/ringwire/callflow/pkg/webhook"
)

const agentsURI = "callflow://agents"

// Engine is the part of callflow.Engine exposed to MCP clients.
type Engine interface {
	ports.FlowService
	GetCall(ctx context.Context, callID string) (*domain.SessionState, error)
	TestWebhook(ctx context.Context, cfg domain.WebhookConfig, vars map[string]any) (webhook.Result, error)
}

// ValidateResult is the structured output of validate_flow.
type ValidateResult struct {
	Valid       bool               `json:"valid" jsonschema_description:"True when the flow has no violations"`
	Violations  []domain.Violation `json:"violations,omitempty" jsonschema_description:"Authoring defects, each with kind, node_id and detail"`
	Unreachable []string           `json:"unreachable,omitempty" jsonschema_description:"Nodes no path from start reaches (warnings)"`
}

// ValidateArgs are the arguments of validate_flow.
type ValidateArgs struct {
	Document string `json:"document"`
}

// Server exposes flow authoring tools over the Model Context Protocol.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates an MCP server backed by engine.
func NewServer(engine Engine, version string, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("callflow-mcp", version),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening (sse)", "addr", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop mcp server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("validate_flow",
		mcp.WithDescription("Validate a call flow document (JSON or YAML) without saving it."),
		mcp.WithString("document", mcp.Required(), mcp.Description("The flow document: an array of {id, kind, label, data} nodes")),
		mcp.WithOutputSchema[ValidateResult](),
	), mcp.NewStructuredToolHandler(s.handleValidateFlow))

	s.mcpServer.AddTool(mcp.NewTool("test_webhook",
		mcp.WithDescription("Send a webhook request the way a function node would and report the outcome."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute URL; {{placeholders}} are substituted")),
		mcp.WithString("method", mcp.Description("GET, POST, PUT or PATCH (default POST)")),
		mcp.WithString("body", mcp.Description("Body template: a {{placeholder}} string or a JSON object schema")),
		mcp.WithString("headers", mcp.Description("JSON object of header values")),
		mcp.WithString("variables", mcp.Description("JSON object of sample variables for the templates")),
		mcp.WithNumber("timeout", mcp.Description("Timeout in seconds, 1-30")),
	), s.handleTestWebhook)

	s.mcpServer.AddTool(mcp.NewTool("get_flow",
		mcp.WithDescription("Return the stored flow of an agent."),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent identifier")),
		mcp.WithString("format", mcp.Enum("json", "yaml"), mcp.Description("Output format (default json)")),
	), s.handleGetFlow)

	s.mcpServer.AddTool(mcp.NewTool("render_graph",
		mcp.WithDescription("Render a flow as a Mermaid flowchart, optionally highlighting the path of a call."),
		mcp.WithString("agent_id", mcp.Description("Agent whose stored flow is rendered")),
		mcp.WithString("document", mcp.Description("Flow document to render instead of a stored flow")),
		mcp.WithString("call_id", mcp.Description("Call whose visited nodes are highlighted")),
	), s.handleRenderGraph)
}

func (s *Server) handleValidateFlow(_ context.Context, _ mcp.CallToolRequest, args ValidateArgs) (ValidateResult, error) {
	flow, err := domain.ParseFlow([]byte(args.Document))
	if err != nil {
		return ValidateResult{}, err
	}
	res := ValidateResult{Valid: true, Unreachable: validator.Unreachable(flow)}
	if err := s.engine.ValidateFlow(flow); err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			return ValidateResult{}, err
		}
		res.Valid = false
		res.Violations = verr.Violations
	}
	return res, nil
}

func (s *Server) handleTestWebhook(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cfg := domain.WebhookConfig{
		URL:            url,
		Method:         request.GetString("method", ""),
		BodyTemplate:   request.GetString("body", ""),
		TimeoutSeconds: int(request.GetFloat("timeout", 0)),
	}
	if cfg.Method != "" && !domain.ValidMethod(cfg.Method) {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported method %q", cfg.Method)), nil
	}
	if raw := request.GetString("headers", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Headers); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("headers must be a JSON object of strings: %v", err)), nil
		}
	}
	var vars map[string]any
	if raw := request.GetString("variables", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("variables must be a JSON object: %v", err)), nil
		}
	}

	res, err := s.engine.TestWebhook(ctx, cfg, vars)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.Marshal(res)
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleGetFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := request.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	flow, err := s.engine.GetFlow(ctx, agentID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var out []byte
	if request.GetString("format", "json") == "yaml" {
		out, err = yaml.Marshal(flow)
	} else {
		out, err = json.MarshalIndent(flow, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("encode flow: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) handleRenderGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := request.GetString("agent_id", "")
	document := request.GetString("document", "")
	callID := request.GetString("call_id", "")

	var overlay *graph.Overlay
	if callID != "" {
		state, err := s.engine.GetCall(ctx, callID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		overlay = graph.OverlayFor(state)
		if agentID == "" && document == "" {
			agentID = state.AgentID
		}
	}

	var (
		flow *domain.Flow
		err  error
	)
	switch {
	case document != "":
		flow, err = domain.ParseFlow([]byte(document))
	case agentID != "":
		flow, err = s.engine.GetFlow(ctx, agentID)
	default:
		return mcp.NewToolResultError("one of agent_id, document or call_id is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(flow, overlay)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(agentsURI, "Agents with a stored flow",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		agents, err := s.engine.ListAgents(ctx)
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		out, _ := json.Marshal(agents)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: agentsURI, MIMEType: "application/json", Text: string(out)},
		}, nil
	})
}
