package callflow

import (
	"context"
	"fmt"

	"github.com/ringwire/callflow/internal/runtime"
	"github.com/ringwire/callflow/pkg/domain"
)

// StartCall opens a call on the agent's current flow and runs it until the caller is needed.
// If the flow deadlocks on entry both the result and a *domain.ResolutionDeadlockError are returned.
func (e *Engine) StartCall(ctx context.Context, agentID string) (*domain.TurnResult, error) {
	g, err := e.graph(ctx, agentID)
	if err != nil {
		return nil, err
	}

	callID := e.newCallID()
	logger := e.logger.With("component", "session")
	s := runtime.NewSession(g, callID, agentID, e.sessionOptions(logger)...)

	res, runErr := s.Start(ctx)
	if res == nil {
		return nil, runErr
	}
	if err := e.manager.Create(ctx, s.Snapshot()); err != nil {
		s.Close()
		return nil, fmt.Errorf("start call: %w", err)
	}
	e.logger.Info("call started", "call_id", callID, "agent_id", agentID, "node_id", res.NodeID)

	e.keep(s)
	e.dispatch(ctx, res)
	return res, runErr
}

// Respond submits one caller turn. Turns of the same call are serialised.
func (e *Engine) Respond(ctx context.Context, callID string, input domain.Input) (*domain.TurnResult, error) {
	input, err := input.Sanitize(e.maxInput)
	if err != nil {
		return nil, err
	}

	var (
		res    *domain.TurnResult
		runErr error
	)
	err = e.manager.WithLock(ctx, callID, func(ctx context.Context) error {
		stored, err := e.manager.Store().Load(ctx, callID)
		if err != nil {
			return err
		}
		if stored.Status.Done() {
			return fmt.Errorf("call %s: %w", callID, domain.ErrSessionClosed)
		}

		s, err := e.session(ctx, stored)
		if err != nil {
			return err
		}

		res, runErr = s.Respond(ctx, input)
		if res == nil {
			return runErr
		}
		if err := e.manager.Store().Save(ctx, callID, s.Snapshot()); err != nil {
			return fmt.Errorf("save call %s: %w", callID, err)
		}
		if s.Done() {
			e.drop(callID)
			s.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.dispatch(ctx, res)
	return res, runErr
}

// GetCall returns the persisted snapshot of a call.
func (e *Engine) GetCall(ctx context.Context, callID string) (*domain.SessionState, error) {
	return e.manager.Load(ctx, callID)
}

// EndCall hangs up an active call. Ending a finished call is a no-op.
func (e *Engine) EndCall(ctx context.Context, callID string) error {
	return e.manager.WithLock(ctx, callID, func(ctx context.Context) error {
		stored, err := e.manager.Store().Load(ctx, callID)
		if err != nil {
			return err
		}

		s := e.drop(callID)
		if s != nil {
			s.Close()
			stored = s.Snapshot()
		} else if !stored.Status.Done() {
			stored.Status = domain.StatusEnded
			stored.Outcome = domain.EndReasonHangup
		}
		e.logger.Info("call ended", "call_id", callID, "status", stored.Status, "outcome", stored.Outcome)
		return e.manager.Store().Save(ctx, callID, stored)
	})
}

// ListCalls returns the ids of every stored call.
func (e *Engine) ListCalls(ctx context.Context) ([]string, error) {
	return e.manager.List(ctx)
}

// session returns the in-memory session for the stored state, restoring it when this
// replica has none or holds an older copy than the store.
func (e *Engine) session(ctx context.Context, stored *domain.SessionState) (*runtime.Session, error) {
	e.mu.Lock()
	s, ok := e.calls[stored.CallID]
	e.mu.Unlock()
	if ok && s.Snapshot().UpdatedAt.Equal(stored.UpdatedAt) {
		return s, nil
	}
	if ok {
		e.logger.Debug("live call is stale, restoring from store", "call_id", stored.CallID)
		e.drop(stored.CallID)
		s.Close()
	}

	g, err := e.pinnedGraph(ctx, stored)
	if err != nil {
		return nil, fmt.Errorf("restore call %s: %w", stored.CallID, err)
	}
	logger := e.logger.With("component", "session")
	s, err = runtime.RestoreSession(g, stored, e.sessionOptions(logger)...)
	if err != nil {
		return nil, err
	}
	e.keep(s)
	return s, nil
}

func (e *Engine) keep(s *runtime.Session) {
	if s.Done() {
		s.Close()
		return
	}
	e.mu.Lock()
	e.calls[s.CallID()] = s
	e.mu.Unlock()
}

func (e *Engine) drop(callID string) *runtime.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.calls[callID]
	if !ok {
		return nil
	}
	delete(e.calls, callID)
	return s
}

func (e *Engine) dispatch(ctx context.Context, res *domain.TurnResult) {
	if e.dispatcher == nil {
		return
	}
	for _, action := range res.Actions {
		if err := e.dispatcher.Dispatch(ctx, action); err != nil {
			e.logger.Warn("action dispatch failed", "call_id", res.CallID, "action", action.Type, "err", err)
		}
	}
}
