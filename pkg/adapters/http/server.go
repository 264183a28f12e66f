package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/ringwire/callflow/internal/logging"
	"github.com/ringwire/callflow/internal/validator"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
	"github.com/ringwire/callflow/pkg/session"
	"github.com/ringwire/callflow/pkg/webhook"
)

const maxDocumentBytes = 1 << 20

// Engine is the part of callflow.Engine the API serves.
type Engine interface {
	ports.FlowService
	ports.CallService
	TestWebhook(ctx context.Context, cfg domain.WebhookConfig, vars map[string]any) (webhook.Result, error)
}

// Server holds the handlers of the REST API.
type Server struct {
	Engine  Engine
	Streams *StreamManager

	logger  *slog.Logger
	metrics http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler replaces the default Prometheus handler served at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Handler()
}

// NewServer creates a Server. Use Handler to mount its routes.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		Engine:  engine,
		logger:  logging.NewNop(),
		metrics: promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Get("/agents", s.ListAgents)
	r.Get("/agents/{agentID}/flow", s.GetFlow)
	r.Put("/agents/{agentID}/flow", s.PutFlow)
	r.Post("/agents/{agentID}/calls", s.StartCall)
	r.Post("/flows/validate", s.ValidateFlow)
	r.Post("/webhook-test", s.TestWebhook)

	r.Get("/calls/{callID}", s.GetCall)
	r.Delete("/calls/{callID}", s.EndCall)
	r.Post("/calls/{callID}/turns", s.Respond)
	r.Get("/calls/{callID}/events", s.SubscribeEvents)
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListAgents handles GET /agents.
func (s *Server) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.Engine.ListAgents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"agents": agents})
}

// GetFlow handles GET /agents/{agentID}/flow. YAML is returned when the client accepts it.
func (s *Server) GetFlow(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathParam(w, r, "agentID")
	if !ok {
		return
	}
	flow, err := s.Engine.GetFlow(r.Context(), agentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "yaml") {
		out, err := yaml.Marshal(flow)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(out)
		return
	}
	s.writeJSON(w, http.StatusOK, flow)
}

// PutFlow handles PUT /agents/{agentID}/flow. Invalid flows are rejected with 422.
func (s *Server) PutFlow(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathParam(w, r, "agentID")
	if !ok {
		return
	}
	flow, ok := s.readFlow(w, r)
	if !ok {
		return
	}
	if err := s.Engine.SaveFlow(r.Context(), agentID, flow); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"agent_id": agentID, "nodes": len(flow.Nodes)})
}

// ValidateFlowResponse is the body of POST /flows/validate.
type ValidateFlowResponse struct {
	Valid       bool               `json:"valid"`
	Violations  []domain.Violation `json:"violations,omitempty"`
	Unreachable []string           `json:"unreachable,omitempty"`
}

// ValidateFlow handles POST /flows/validate. Unreachable nodes are warnings, not violations.
func (s *Server) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	flow, ok := s.readFlow(w, r)
	if !ok {
		return
	}
	resp := ValidateFlowResponse{Valid: true, Unreachable: validator.Unreachable(flow)}
	status := http.StatusOK
	if err := s.Engine.ValidateFlow(flow); err != nil {
		var verr *domain.ValidationError
		if !errors.As(err, &verr) {
			s.writeError(w, r, err)
			return
		}
		resp.Valid = false
		resp.Violations = verr.Violations
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, resp)
}

// WebhookTestRequest is the body of POST /webhook-test.
type WebhookTestRequest struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Body      string            `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timeout   int               `json:"timeout"`
	Variables map[string]any    `json:"variables"`
}

// TestWebhook handles POST /webhook-test. The upstream outcome is reported in the body, never as an HTTP error.
func (s *Server) TestWebhook(w http.ResponseWriter, r *http.Request) {
	var body WebhookTestRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDocumentBytes)).Decode(&body); err != nil {
		s.writeProblem(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if body.URL == "" {
		s.writeProblem(w, http.StatusBadRequest, "url is required", nil)
		return
	}
	if body.Method != "" && !domain.ValidMethod(body.Method) {
		s.writeProblem(w, http.StatusBadRequest, fmt.Sprintf("unsupported method %q", body.Method), nil)
		return
	}

	cfg := domain.WebhookConfig{
		URL:            body.URL,
		Method:         body.Method,
		Headers:        body.Headers,
		BodyTemplate:   body.Body,
		TimeoutSeconds: body.Timeout,
	}
	res, err := s.Engine.TestWebhook(r.Context(), cfg, body.Variables)
	if err != nil {
		var missing *webhook.MissingPropertiesError
		if errors.As(err, &missing) {
			s.writeJSON(w, http.StatusOK, WebhookTestResponse{
				Result:  webhook.Result{Error: err.Error()},
				Missing: missing.Missing,
			})
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// WebhookTestResponse is the invocation result. Missing lists the schema
// properties that kept the request from being sent.
type WebhookTestResponse struct {
	webhook.Result
	Missing []string `json:"missing,omitempty"`
}

// TurnResponse is a turn result plus the deadlock that ended the call, if any.
type TurnResponse struct {
	*domain.TurnResult
	Error string `json:"error,omitempty"`
}

// StartCall handles POST /agents/{agentID}/calls.
func (s *Server) StartCall(w http.ResponseWriter, r *http.Request) {
	agentID, ok := s.pathParam(w, r, "agentID")
	if !ok {
		return
	}
	res, err := s.Engine.StartCall(r.Context(), agentID)
	s.writeTurn(w, r, http.StatusCreated, res, err)
}

// Respond handles POST /calls/{callID}/turns with a domain.Input body.
func (s *Server) Respond(w http.ResponseWriter, r *http.Request) {
	callID, ok := s.pathParam(w, r, "callID")
	if !ok {
		return
	}
	var input domain.Input
	if err := json.NewDecoder(io.LimitReader(r.Body, maxDocumentBytes)).Decode(&input); err != nil {
		s.writeProblem(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	res, err := s.Engine.Respond(r.Context(), callID, input)
	s.writeTurn(w, r, http.StatusOK, res, err)
}

// writeTurn answers with the result even when the turn ended in a resolution deadlock,
// since the END_CALL action must still reach the host.
func (s *Server) writeTurn(w http.ResponseWriter, r *http.Request, status int, res *domain.TurnResult, err error) {
	if res == nil {
		s.writeError(w, r, err)
		return
	}
	resp := TurnResponse{TurnResult: res}
	if err != nil {
		resp.Error = err.Error()
	}
	if payload, merr := json.Marshal(resp); merr == nil {
		s.Streams.Broadcast(res.CallID, string(payload))
	}
	s.writeJSON(w, status, resp)
}

// GetCall handles GET /calls/{callID}.
func (s *Server) GetCall(w http.ResponseWriter, r *http.Request) {
	callID, ok := s.pathParam(w, r, "callID")
	if !ok {
		return
	}
	state, err := s.Engine.GetCall(r.Context(), callID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// EndCall handles DELETE /calls/{callID}.
func (s *Server) EndCall(w http.ResponseWriter, r *http.Request) {
	callID, ok := s.pathParam(w, r, "callID")
	if !ok {
		return
	}
	if err := s.Engine.EndCall(r.Context(), callID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.Streams.Close(callID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &value,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.writeProblem(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name), err)
		return "", false
	}
	return value, true
}

func (s *Server) readFlow(w http.ResponseWriter, r *http.Request) (*domain.Flow, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		s.writeProblem(w, http.StatusRequestEntityTooLarge, "flow document too large", err)
		return nil, false
	}
	flow, err := domain.ParseFlow(raw)
	if err != nil {
		s.writeProblem(w, http.StatusBadRequest, "invalid flow document", err)
		return nil, false
	}
	return flow, true
}

type problem struct {
	Error      string             `json:"error"`
	Detail     string             `json:"detail,omitempty"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

func (s *Server) writeProblem(w http.ResponseWriter, status int, msg string, err error) {
	p := problem{Error: msg}
	if err != nil {
		p.Detail = err.Error()
	}
	s.writeJSON(w, status, p)
}

// writeError maps domain errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		s.writeJSON(w, http.StatusUnprocessableEntity, problem{Error: domain.ErrInvalidFlow.Error(), Violations: verr.Violations})
	case errors.Is(err, domain.ErrFlowNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrNodeNotFound):
		s.writeProblem(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, domain.ErrSessionClosed),
		errors.Is(err, session.ErrCallExists):
		s.writeProblem(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, domain.ErrInputTooLarge),
		errors.Is(err, domain.ErrInvalidUTF8),
		errors.Is(err, domain.ErrInvalidDigit):
		s.writeProblem(w, http.StatusBadRequest, "invalid input", err)
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		s.writeProblem(w, http.StatusInternalServerError, "internal error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
