package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ringwire/callflow/internal/logging"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
	"github.com/ringwire/callflow/pkg/webhook"
)

const (
	// DefaultMaxUnresolvedTurns is how many caller turns a node may fail to route before the call is ended as a flow defect.
	DefaultMaxUnresolvedTurns = 3
	// DefaultMaxChainedTransitions bounds node entries without a caller turn in between.
	DefaultMaxChainedTransitions = 32
)

// ErrFlowVersionMismatch is returned when a snapshot is restored onto a graph of another flow.
var ErrFlowVersionMismatch = errors.New("flow version mismatch")

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithJudge sets the collaborator that evaluates natural-language conditions.
func WithJudge(j ports.Judge) SessionOption {
	return func(s *Session) {
		s.judge = j
	}
}

// WithExtractor sets the collaborator that extracts variables.
func WithExtractor(x ports.Extractor) SessionOption {
	return func(s *Session) {
		s.extractor = x
	}
}

// WithInvoker sets the webhook invoker.
func WithInvoker(i *webhook.Invoker) SessionOption {
	return func(s *Session) {
		s.invoker = i
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) SessionOption {
	return func(s *Session) {
		s.hooks = hooks
	}
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxUnresolvedTurns overrides DefaultMaxUnresolvedTurns.
func WithMaxUnresolvedTurns(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxUnresolved = n
		}
	}
}

// WithMaxChainedTransitions overrides DefaultMaxChainedTransitions.
func WithMaxChainedTransitions(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.maxChained = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// Session drives one call. Turns are processed one at a time.
type Session struct {
	mu sync.Mutex

	callID   string
	agentID  string
	graph    *Graph
	state    *domain.SessionState
	vars     *Variables
	binder   *Binder
	resolver *Resolver
	started  bool

	judge     ports.Judge
	extractor ports.Extractor
	invoker   *webhook.Invoker
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	now       func() time.Time

	maxUnresolved int
	maxChained    int

	// lifetime bounds async webhooks; Close cancels it.
	lifetime context.Context
	cancel   context.CancelFunc
	async    sync.WaitGroup
}

// NewSession creates a call positioned at the start node. Call Start to enter it.
func NewSession(graph *Graph, callID, agentID string, opts ...SessionOption) *Session {
	state := domain.NewSessionState(callID, agentID, graph.StartID())
	state.FlowVersion = graph.Version()
	state.Flow = graph.Flow()
	return newSession(graph, state, opts)
}

// RestoreSession resumes a call from a snapshot.
// Async webhooks that were in flight when the snapshot was taken are not resumed.
// A snapshot pinned to another flow version is refused.
func RestoreSession(graph *Graph, state *domain.SessionState, opts ...SessionOption) (*Session, error) {
	if state.FlowVersion != "" && state.FlowVersion != graph.Version() {
		return nil, fmt.Errorf("restore call %s: %w: pinned %s, got %s",
			state.CallID, ErrFlowVersionMismatch, state.FlowVersion, graph.Version())
	}
	if _, err := graph.NodeByID(state.CurrentNodeID); err != nil {
		return nil, fmt.Errorf("restore call %s: %w", state.CallID, err)
	}
	s := newSession(graph, cloneState(state), opts)
	s.state.FlowVersion = graph.Version()
	s.state.Flow = graph.Flow()
	s.started = true
	if len(state.Pending) > 0 {
		s.logger.Warn("pending webhook results were lost on restore", "pending", state.Pending)
		s.state.Pending = nil
	}
	return s, nil
}

func newSession(graph *Graph, state *domain.SessionState, opts []SessionOption) *Session {
	s := &Session{
		callID:        state.CallID,
		agentID:       state.AgentID,
		graph:         graph,
		state:         state,
		logger:        logging.NewNop(),
		now:           time.Now,
		maxUnresolved: DefaultMaxUnresolvedTurns,
		maxChained:    DefaultMaxChainedTransitions,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.invoker == nil {
		s.invoker = webhook.New(webhook.WithLogger(s.logger))
	}
	s.logger = s.logger.With("call_id", state.CallID, "agent_id", state.AgentID)
	s.vars = NewVariables(state.Variables)
	s.binder = NewBinder(s.vars, s.extractor, s.logger)
	s.resolver = NewResolver(s.judge, s.vars, s.logger)
	s.lifetime, s.cancel = context.WithCancel(context.Background())
	return s
}

// CallID returns the call identifier.
func (s *Session) CallID() string {
	return s.callID
}

// Variables exposes the live variable namespace.
func (s *Session) Variables() *Variables {
	return s.vars
}

// Done reports whether the call has ended.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Status.Done()
}

// Snapshot returns a deep copy of the call state.
func (s *Session) Snapshot() *domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Start enters the start node and runs until the call needs the caller.
// On a resolution deadlock both the result (with its END_CALL action) and the error are returned.
func (s *Session) Start(ctx context.Context) (*domain.TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil, fmt.Errorf("call %s already started", s.state.CallID)
	}
	s.started = true

	before := s.snapshotLocked()
	t := s.newTurn(domain.Input{}, false)

	node, err := s.graph.NodeByID(s.state.CurrentNodeID)
	if err != nil {
		return nil, err
	}
	s.nodeEntered(ctx, node)

	err = s.run(ctx, t, node)
	return s.finish(t, before), err
}

// Respond processes one caller turn on the current node.
func (s *Session) Respond(ctx context.Context, input domain.Input) (*domain.TurnResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil, fmt.Errorf("call %s has not started", s.state.CallID)
	}
	if s.state.Status.Done() {
		return nil, fmt.Errorf("call %s: %w", s.state.CallID, domain.ErrSessionClosed)
	}

	before := s.snapshotLocked()
	t := s.newTurn(input, true)

	said := input.Text
	if input.Digit != "" {
		said = "[pressed " + input.Digit + "]"
	}
	s.appendUtterance(domain.SpeakerCaller, said)

	node, err := s.graph.NodeByID(s.state.CurrentNodeID)
	if err != nil {
		return nil, err
	}

	err = s.run(ctx, t, node)
	return s.finish(t, before), err
}

// Close ends the call and cancels async webhooks, waiting for them to return.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state.Status == domain.StatusActive {
		s.state.Status = domain.StatusEnded
		s.state.Outcome = domain.EndReasonHangup
	}
	s.mu.Unlock()

	s.cancel()
	s.async.Wait()
}

type turn struct {
	result    *domain.TurnResult
	input     domain.Input
	responded bool
}

func (t *turn) emit(nodeID, actionType string, payload any) {
	t.result.Actions = append(t.result.Actions, domain.ActionRequest{
		Type:    actionType,
		NodeID:  nodeID,
		Payload: payload,
	})
}

func (s *Session) newTurn(input domain.Input, responded bool) *turn {
	return &turn{
		result:    &domain.TurnResult{CallID: s.state.CallID, Actions: []domain.ActionRequest{}},
		input:     input,
		responded: responded,
	}
}

// run evaluates node and follows transitions until the call waits or ends.
func (s *Session) run(ctx context.Context, t *turn, node *domain.Node) error {
	next, rule, err := s.evaluate(ctx, t, node)
	for hops := 0; err == nil && next != ""; hops++ {
		if hops >= s.maxChained {
			return s.fail(t, s.state.CurrentNodeID, hops,
				fmt.Sprintf("more than %d transitions without a caller turn", s.maxChained))
		}
		node, err = s.moveTo(ctx, next, rule)
		if err != nil {
			return s.fail(t, s.state.CurrentNodeID, 1, err.Error())
		}
		// Only the first node of a turn sees the caller's reply.
		t.responded = false
		next, rule, err = s.evaluate(ctx, t, node)
	}
	return err
}

// evaluate performs the node's behaviour and picks its successor.
// An empty target means the call waits for the caller or has ended.
func (s *Session) evaluate(ctx context.Context, t *turn, node *domain.Node) (string, string, error) {
	switch d := node.Data.(type) {
	case *domain.EndingData:
		t.emit(node.ID, domain.ActionEndCall, domain.EndCall{Reason: domain.EndReasonCompleted, Speech: s.speech(d.Content, false)})
		s.endCall(domain.StatusEnded, domain.EndReasonCompleted)
		return "", "", nil

	case *domain.CallTransferData:
		t.emit(node.ID, domain.ActionTransferCall, domain.CallTransfer{
			PhoneNumber:  webhook.Substitute(d.PhoneNumber, s.vars, s.builtins()),
			TransferType: d.TransferType,
			Speech:       s.speech(d.Content, false),
		})
		s.endCall(domain.StatusTransferred, "transferred_to_number")
		return "", "", nil

	case *domain.AgentTransferData:
		t.emit(node.ID, domain.ActionTransferAgent, domain.AgentTransfer{AgentID: d.AgentID, Speech: s.speech(d.Content, false)})
		s.endCall(domain.StatusTransferred, "transferred_to_agent")
		return "", "", nil

	case *domain.StartData:
		return s.conversational(ctx, t, node, d.Content, false)
	case *domain.ConversationData:
		return s.conversational(ctx, t, node, d.Content, d.BlockInterruptions)
	case *domain.CollectInputData:
		return s.conversational(ctx, t, node, d.Content, false)

	case *domain.PressDigitData:
		return s.pressDigit(ctx, t, node, d)

	case *domain.FunctionData:
		return s.function(ctx, t, node, d)

	case *domain.SendSMSData:
		if !s.state.Visit.EffectFired {
			b := s.builtins()
			t.emit(node.ID, domain.ActionSendSMS, domain.SMS{
				To:      webhook.Substitute(d.To, s.vars, b),
				Message: webhook.Substitute(d.Message, s.vars, b),
			})
			s.state.Visit.EffectFired = true
		}
		return s.route(ctx, t, node)

	case *domain.ExtractVariableData:
		s.binder.Extract(ctx, d.ExtractVariables, s.turnContext())
		return s.route(ctx, t, node)

	case *domain.LogicSplitData:
		res, err := s.resolver.LogicSplit(node.ID, d)
		if err != nil {
			var deadlock *domain.ResolutionDeadlockError
			if errors.As(err, &deadlock) {
				return "", "", s.fail(t, node.ID, deadlock.Attempts, deadlock.Reason)
			}
			return "", "", err
		}
		return res.Target, res.Rule, nil
	}

	return "", "", s.fail(t, node.ID, 1, fmt.Sprintf("node kind '%s' cannot be executed", node.Kind))
}

// conversational handles start, conversation and collect_input nodes.
// They speak on entry and resolve on the caller's reply, unless routed by Fixed.
func (s *Session) conversational(ctx context.Context, t *turn, node *domain.Node, content domain.Content, block bool) (string, string, error) {
	if !t.responded {
		s.say(t, node.ID, content, block)
		switch st := node.Strategy().(type) {
		case domain.Fixed:
			return st.Target, RuleFixed, nil
		case domain.AfterAnyResponse:
			s.state.Visit.AwaitingResponse = true
		}
		s.listen(t, node)
		return "", "", nil
	}

	s.binder.Extract(ctx, node.ExtractVariables(), s.turnContext())
	return s.route(ctx, t, node)
}

func (s *Session) pressDigit(_ context.Context, t *turn, node *domain.Node, d *domain.PressDigitData) (string, string, error) {
	if !t.responded {
		s.say(t, node.ID, d.Content, false)
		s.listen(t, node)
		return "", "", nil
	}

	digit := t.input.Digit
	if digit == "" {
		digit = strings.TrimSpace(t.input.Text)
	}
	if target, ok := d.Target(digit); ok {
		return target, RuleDigit, nil
	}
	return s.retryMenu(t, node)
}

// function gates on required variables, fires the webhook once per visit, then routes.
func (s *Session) function(ctx context.Context, t *turn, node *domain.Node, d *domain.FunctionData) (string, string, error) {
	specs := d.ExtractVariables
	s.binder.Extract(ctx, specs, s.turnContext())

	if !s.state.Visit.EffectFired {
		if missing := s.binder.Missing(specs); len(missing) > 0 {
			return s.gate(t, node, d.Webhook.Goal, specs, missing)
		}
		if blocked := s.fireWebhook(ctx, t, node, d.Webhook); len(blocked) > 0 {
			return s.gate(t, node, d.Webhook.Goal, specs, blocked)
		}
	}
	return s.route(ctx, t, node)
}

// route applies the node's transition strategy.
func (s *Session) route(ctx context.Context, t *turn, node *domain.Node) (string, string, error) {
	switch st := node.Strategy().(type) {
	case domain.Fixed:
		return st.Target, RuleFixed, nil

	case domain.AfterAnyResponse:
		if t.responded && s.state.Visit.AwaitingResponse {
			return st.Target, RuleAfterResponse, nil
		}
		s.state.Visit.AwaitingResponse = true
		s.listen(t, node)
		return "", "", nil

	case domain.Conditional:
		res := s.resolver.Conditional(ctx, st.Transitions, s.turnContext())
		if res.Matched() {
			return res.Target, res.Rule, nil
		}
	}
	return s.unresolved(ctx, t, node)
}

// unresolved keeps the call on node after nothing matched, nudging toward the goal.
// Without a goal there is nothing to steer the caller toward, so the call fails.
func (s *Session) unresolved(_ context.Context, t *turn, node *domain.Node) (string, string, error) {
	goal := node.Goal()
	if goal == "" {
		return "", "", s.fail(t, node.ID, 1, "no transition matched and the node has no goal")
	}
	if t.responded {
		if err := s.countUnresolved(t, node.ID, "no transition matched within the retry bound"); err != nil {
			return "", "", err
		}
	}
	t.emit(node.ID, domain.ActionGoalNudge, goal)
	s.listen(t, node)
	return "", "", nil
}

// retryMenu asks again after a key that maps to no option.
// A digit menu always has an implicit goal: one of its listed keys.
func (s *Session) retryMenu(t *turn, node *domain.Node) (string, string, error) {
	if err := s.countUnresolved(t, node.ID, "no valid key pressed within the retry bound"); err != nil {
		return "", "", err
	}
	if goal := node.Goal(); goal != "" {
		t.emit(node.ID, domain.ActionGoalNudge, goal)
	}
	s.listen(t, node)
	return "", "", nil
}

func (s *Session) countUnresolved(t *turn, nodeID, reason string) error {
	s.state.Visit.UnresolvedTurns++
	if s.state.Visit.UnresolvedTurns > s.maxUnresolved {
		return s.fail(t, nodeID, s.state.Visit.UnresolvedTurns, reason)
	}
	return nil
}

// gate keeps a function node waiting for variables.
func (s *Session) gate(t *turn, node *domain.Node, goal string, specs []domain.ExtractVariableSpec, missing []string) (string, string, error) {
	t.result.Gated = true
	t.result.Missing = missing

	if t.responded {
		if err := s.countUnresolved(t, node.ID, "required variables still missing: "+strings.Join(missing, ", ")); err != nil {
			return "", "", err
		}
	}

	if goal != "" {
		t.emit(node.ID, domain.ActionGoalNudge, goal)
	} else {
		for _, r := range s.binder.Reprompts(specs, missing) {
			t.emit(node.ID, domain.ActionReprompt, r)
		}
	}
	s.listen(t, node)
	return "", "", nil
}

// fireWebhook dispatches the node's webhook. It returns the schema properties that blocked it, if any.
func (s *Session) fireWebhook(ctx context.Context, t *turn, node *domain.Node, cfg domain.WebhookConfig) []string {
	req, err := s.invoker.Prepare(cfg, s.vars, s.builtins())
	if err != nil {
		var missing *webhook.MissingPropertiesError
		if errors.As(err, &missing) {
			s.logger.Info("webhook blocked by schema", "node_id", node.ID, "missing", missing.Missing)
			t.result.Webhooks = append(t.result.Webhooks, domain.WebhookOutcome{
				NodeID:  node.ID,
				URL:     cfg.URL,
				Blocked: missing.Missing,
			})
			return missing.Missing
		}
		s.state.Visit.EffectFired = true
		s.logger.Warn("webhook request could not be built", "node_id", node.ID, "err", err)
		t.result.Webhooks = append(t.result.Webhooks, domain.WebhookOutcome{NodeID: node.ID, URL: cfg.URL, Error: err.Error()})
		return nil
	}

	if cfg.SpeakDuringExecution {
		s.say(t, node.ID, domain.Content{DialogueType: cfg.DialogueType, Text: cfg.DialogueText}, cfg.BlockInterruptions)
	}
	s.state.Visit.EffectFired = true

	async := !cfg.Waits()
	s.webhookCalled(ctx, node, req, async)

	if async {
		name := cfg.ResponseVar()
		s.vars.MarkPending(name)
		s.async.Add(1)
		go func() {
			defer s.async.Done()
			res := s.invoker.Do(s.lifetime, req)
			s.vars.Resolve(name, res.Response, res.Success)
			s.webhookReturned(s.lifetime, node, req, res, true)
		}()
		t.result.Webhooks = append(t.result.Webhooks, domain.WebhookOutcome{NodeID: node.ID, URL: req.URL, Async: true})
		return nil
	}

	res := s.invoker.Do(ctx, req)
	if res.Success {
		s.vars.Set(cfg.ResponseVar(), res.Response)
	} else {
		s.vars.Unset(cfg.ResponseVar())
	}
	s.webhookReturned(ctx, node, req, res, false)
	t.result.Webhooks = append(t.result.Webhooks, domain.WebhookOutcome{
		NodeID:     node.ID,
		URL:        req.URL,
		Success:    res.Success,
		StatusCode: res.StatusCode,
		Error:      res.Error,
	})
	return nil
}

// fail ends the call as a flow defect and returns the deadlock error.
func (s *Session) fail(t *turn, nodeID string, attempts int, reason string) error {
	err := &domain.ResolutionDeadlockError{NodeID: nodeID, Attempts: attempts, Reason: reason}
	s.logger.Error("flow defect, ending call", "node_id", nodeID, "err", err)
	t.emit(nodeID, domain.ActionEndCall, domain.EndCall{Reason: domain.EndReasonFlowDefect})
	s.endCall(domain.StatusFailed, domain.EndReasonFlowDefect)
	return err
}

func (s *Session) endCall(status domain.SessionStatus, outcome string) {
	s.state.Status = status
	s.state.Outcome = outcome
}

func (s *Session) moveTo(ctx context.Context, target, rule string) (*domain.Node, error) {
	next, err := s.graph.NodeByID(target)
	if err != nil {
		return nil, err
	}
	if current, err := s.graph.NodeByID(s.state.CurrentNodeID); err == nil {
		s.nodeLeft(ctx, current)
	}
	s.transitioned(ctx, s.state.CurrentNodeID, target, rule)

	s.state.CurrentNodeID = target
	s.state.History = append(s.state.History, target)
	s.state.Visit = domain.Visit{NodeID: target}

	s.nodeEntered(ctx, next)
	return next, nil
}

func (s *Session) say(t *turn, nodeID string, content domain.Content, block bool) {
	if content.Text == "" {
		return
	}
	content.Text = webhook.Substitute(content.Text, s.vars, s.builtins())
	sp := domain.SpeechFor(content)
	sp.BlockInterruptions = block
	t.emit(nodeID, domain.ActionSpeak, sp)
	s.appendUtterance(domain.SpeakerAgent, content.Text)
}

func (s *Session) speech(content domain.Content, block bool) *domain.Speech {
	if content.Text == "" {
		return nil
	}
	content.Text = webhook.Substitute(content.Text, s.vars, s.builtins())
	sp := domain.SpeechFor(content)
	sp.BlockInterruptions = block
	return &sp
}

func (s *Session) listen(t *turn, node *domain.Node) {
	req := domain.InputRequest{Type: domain.InputSpeech}
	if d, ok := node.Data.(*domain.PressDigitData); ok {
		req.Type = domain.InputDTMF
		for _, m := range d.Digits {
			req.Digits = append(req.Digits, m.Digit)
		}
	}
	t.emit(node.ID, domain.ActionRequestInput, req)
}

func (s *Session) appendUtterance(speaker domain.Speaker, text string) {
	s.state.Transcript = append(s.state.Transcript, domain.Utterance{
		Speaker: speaker,
		Text:    text,
		NodeID:  s.state.CurrentNodeID,
		At:      s.now().UTC(),
	})
}

func (s *Session) turnContext() ports.TurnContext {
	transcript := make([]domain.Utterance, len(s.state.Transcript))
	copy(transcript, s.state.Transcript)
	return ports.TurnContext{
		CallID:     s.state.CallID,
		AgentID:    s.state.AgentID,
		NodeID:     s.state.CurrentNodeID,
		Transcript: transcript,
		Variables:  s.vars.Snapshot(),
	}
}

func (s *Session) builtins() webhook.Builtins {
	b := webhook.Builtins{CallID: s.state.CallID}
	for i := len(s.state.Transcript) - 1; i >= 0; i-- {
		if s.state.Transcript[i].Speaker == domain.SpeakerCaller {
			b.UserMessage = s.state.Transcript[i].Text
			break
		}
	}
	return b
}

func (s *Session) finish(t *turn, before *domain.SessionState) *domain.TurnResult {
	s.state.UpdatedAt = s.now().UTC()
	after := s.snapshotLocked()

	t.result.NodeID = after.CurrentNodeID
	t.result.Status = after.Status
	t.result.Diff = domain.Diff(before, after)
	return t.result
}

func (s *Session) snapshotLocked() *domain.SessionState {
	s.state.Variables = s.vars.Snapshot()
	s.state.Pending = s.vars.Pending()
	return cloneState(s.state)
}

// cloneState copies the state so that callers can keep it past the next turn.
func cloneState(src *domain.SessionState) *domain.SessionState {
	next := *src
	next.Variables = make(map[string]any, len(src.Variables))
	for k, v := range src.Variables {
		next.Variables[k] = v
	}
	next.Pending = append([]string(nil), src.Pending...)
	next.Transcript = append([]domain.Utterance(nil), src.Transcript...)
	next.History = append([]string(nil), src.History...)
	return &next
}
