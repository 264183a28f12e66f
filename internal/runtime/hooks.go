package runtime

import (
	"context"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/webhook"
)

func (s *Session) base(t domain.EventType) domain.EventBase {
	return domain.EventBase{
		Timestamp: s.now().UTC(),
		Type:      t,
		CallID:    s.callID,
		AgentID:   s.agentID,
	}
}

func (s *Session) nodeEntered(ctx context.Context, node *domain.Node) {
	s.logger.Debug("node enter", "node_id", node.ID, "kind", node.Kind)
	if s.hooks.OnNodeEnter == nil {
		return
	}
	s.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
		EventBase: s.base(domain.EventNodeEnter),
		NodeID:    node.ID,
		NodeKind:  node.Kind,
	})
}

func (s *Session) nodeLeft(ctx context.Context, node *domain.Node) {
	if s.hooks.OnNodeLeave == nil {
		return
	}
	s.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
		EventBase: s.base(domain.EventNodeLeave),
		NodeID:    node.ID,
		NodeKind:  node.Kind,
	})
}

func (s *Session) transitioned(ctx context.Context, from, to, rule string) {
	s.logger.Info("transition", "from", from, "to", to, "rule", rule)
	if s.hooks.OnTransition == nil {
		return
	}
	s.hooks.OnTransition(ctx, &domain.TransitionEvent{
		EventBase: s.base(domain.EventTransition),
		From:      from,
		To:        to,
		Rule:      rule,
	})
}

func (s *Session) webhookCalled(ctx context.Context, node *domain.Node, req webhook.Request, async bool) {
	if s.hooks.OnWebhookCall == nil {
		return
	}
	s.hooks.OnWebhookCall(ctx, &domain.WebhookEvent{
		EventBase: s.base(domain.EventWebhookCall),
		NodeID:    node.ID,
		URL:       req.URL,
		Method:    req.Method,
		Async:     async,
	})
}

// webhookReturned may run on an async goroutine, so it must not touch session state.
func (s *Session) webhookReturned(ctx context.Context, node *domain.Node, req webhook.Request, res webhook.Result, async bool) {
	if !res.Success {
		s.logger.Debug("webhook result discarded", "node_id", node.ID, "status", res.StatusCode, "async", async)
	}
	if s.hooks.OnWebhookReturn == nil {
		return
	}
	s.hooks.OnWebhookReturn(ctx, &domain.WebhookEvent{
		EventBase:  s.base(domain.EventWebhookReturn),
		NodeID:     node.ID,
		URL:        req.URL,
		Method:     req.Method,
		StatusCode: res.StatusCode,
		Duration:   res.Duration,
		IsError:    !res.Success,
		Async:      async,
	})
}
