package callflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ringwire/callflow/internal/logging"
	"github.com/ringwire/callflow/internal/runtime"
	"github.com/ringwire/callflow/internal/validator"
	"github.com/ringwire/callflow/pkg/adapters/memory"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
	"github.com/ringwire/callflow/pkg/session"
	"github.com/ringwire/callflow/pkg/webhook"
)

// Engine is the entry point of the library. It implements ports.FlowService and ports.CallService.
type Engine struct {
	repo       ports.FlowRepository
	store      ports.StateStore
	locker     ports.DistributedLocker
	manager    *session.Manager
	judge      ports.Judge
	extractor  ports.Extractor
	invoker    *webhook.Invoker
	dispatcher ports.ActionDispatcher
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	newCallID  func() string

	maxUnresolved int
	maxChained    int
	maxInput      int

	mu    sync.Mutex
	calls map[string]*runtime.Session

	graphMu sync.Mutex
	graphs  map[string]*runtime.Graph // by flow version
}

var (
	_ ports.FlowService = (*Engine)(nil)
	_ ports.CallService = (*Engine)(nil)
)

// Option configures the Engine.
type Option func(*Engine)

// WithStateStore persists call snapshots. The default is an in-memory store.
func WithStateStore(store ports.StateStore) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithLocker serialises turns of one call across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithJudge sets the condition judge.
func WithJudge(j ports.Judge) Option {
	return func(e *Engine) {
		e.judge = j
	}
}

// WithExtractor sets the variable extractor.
func WithExtractor(x ports.Extractor) Option {
	return func(e *Engine) {
		e.extractor = x
	}
}

// WithInvoker sets the webhook invoker shared by every call and by TestWebhook.
func WithInvoker(i *webhook.Invoker) Option {
	return func(e *Engine) {
		e.invoker = i
	}
}

// WithDispatcher forwards every emitted action to d after the turn is persisted.
func WithDispatcher(d ports.ActionDispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMaxUnresolvedTurns bounds caller turns that fail to route on one node.
func WithMaxUnresolvedTurns(n int) Option {
	return func(e *Engine) {
		e.maxUnresolved = n
	}
}

// WithMaxChainedTransitions bounds node entries between caller turns.
func WithMaxChainedTransitions(n int) Option {
	return func(e *Engine) {
		e.maxChained = n
	}
}

// WithMaxInputSize bounds a caller utterance in bytes. Larger turns are rejected.
func WithMaxInputSize(n int) Option {
	return func(e *Engine) {
		e.maxInput = n
	}
}

// WithCallIDGenerator replaces the UUID call id generator.
func WithCallIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		e.newCallID = fn
	}
}

// New creates an engine over a flow repository.
func New(repo ports.FlowRepository, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("flow repository is required")
	}
	e := &Engine{
		repo:      repo,
		logger:    logging.NewNop(),
		newCallID: uuid.NewString,
		calls:     make(map[string]*runtime.Session),
		graphs:    make(map[string]*runtime.Graph),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.invoker == nil {
		e.invoker = webhook.New(webhook.WithLogger(e.logger))
	}
	managerOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(e.locker))
	}
	e.manager = session.NewManager(e.store, managerOpts...)
	return e, nil
}

// GetFlow returns the agent's flow.
func (e *Engine) GetFlow(ctx context.Context, agentID string) (*domain.Flow, error) {
	return e.repo.GetFlow(ctx, agentID)
}

// SaveFlow validates flow and stores it. Invalid flows are rejected with *domain.ValidationError.
// Calls already in progress keep the flow they started with.
func (e *Engine) SaveFlow(ctx context.Context, agentID string, flow *domain.Flow) error {
	if err := validator.Validate(flow); err != nil {
		return err
	}
	if err := e.repo.ReplaceFlow(ctx, agentID, flow); err != nil {
		return fmt.Errorf("save flow for agent %s: %w", agentID, err)
	}
	e.logger.Info("flow saved", "agent_id", agentID, "nodes", len(flow.Nodes))
	return nil
}

// ValidateFlow checks flow without storing it.
func (e *Engine) ValidateFlow(flow *domain.Flow) error {
	return validator.Validate(flow)
}

// ListAgents lists agents with a stored flow.
func (e *Engine) ListAgents(ctx context.Context) ([]string, error) {
	return e.repo.ListAgents(ctx)
}

// TestWebhook renders cfg with sample variables and sends it with the invoker calls use.
// It returns *webhook.MissingPropertiesError when a schema body cannot be built from vars.
func (e *Engine) TestWebhook(ctx context.Context, cfg domain.WebhookConfig, vars map[string]any) (webhook.Result, error) {
	req, err := e.invoker.Prepare(cfg, webhook.Vars(vars), webhook.Builtins{CallID: "webhook-test"})
	if err != nil {
		return webhook.Result{}, err
	}
	return e.invoker.Do(ctx, req), nil
}

func (e *Engine) sessionOptions(logger *slog.Logger) []runtime.SessionOption {
	opts := []runtime.SessionOption{
		runtime.WithJudge(e.judge),
		runtime.WithExtractor(e.extractor),
		runtime.WithInvoker(e.invoker),
		runtime.WithLifecycleHooks(e.hooks),
		runtime.WithLogger(logger),
	}
	if e.maxUnresolved > 0 {
		opts = append(opts, runtime.WithMaxUnresolvedTurns(e.maxUnresolved))
	}
	if e.maxChained > 0 {
		opts = append(opts, runtime.WithMaxChainedTransitions(e.maxChained))
	}
	return opts
}

// graph builds the agent's current flow. Graphs are shared by version.
func (e *Engine) graph(ctx context.Context, agentID string) (*runtime.Graph, error) {
	flow, err := e.repo.GetFlow(ctx, agentID)
	if err != nil {
		return nil, err
	}
	g, err := runtime.NewGraph(flow)
	if err != nil {
		return nil, fmt.Errorf("flow for agent %s: %w", agentID, err)
	}
	return e.share(g), nil
}

// pinnedGraph returns the graph of the flow a call started on.
// Snapshots written before flows were pinned fall back to the agent's current flow.
func (e *Engine) pinnedGraph(ctx context.Context, state *domain.SessionState) (*runtime.Graph, error) {
	if state.Flow == nil {
		e.logger.Warn("call has no pinned flow, using the current one", "call_id", state.CallID, "agent_id", state.AgentID)
		return e.graph(ctx, state.AgentID)
	}

	e.graphMu.Lock()
	g, ok := e.graphs[state.FlowVersion]
	e.graphMu.Unlock()
	if ok {
		return g, nil
	}

	g, err := runtime.NewGraph(state.Flow)
	if err != nil {
		return nil, fmt.Errorf("pinned flow of call %s: %w", state.CallID, err)
	}
	return e.share(g), nil
}

func (e *Engine) share(g *runtime.Graph) *runtime.Graph {
	e.graphMu.Lock()
	defer e.graphMu.Unlock()
	if cached, ok := e.graphs[g.Version()]; ok {
		return cached
	}
	e.graphs[g.Version()] = g
	return g
}

// Close ends every call held in memory and waits for their async webhooks.
func (e *Engine) Close() {
	e.mu.Lock()
	calls := e.calls
	e.calls = make(map[string]*runtime.Session)
	e.mu.Unlock()

	for _, s := range calls {
		s.Close()
	}
}
