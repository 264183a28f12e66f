package observability

import (
	"context"
	"log/slog"

	"github.com/ringwire/callflow/pkg/domain"
)

// Chain merges hook sets. Callbacks run in argument order; nil callbacks are skipped.
func Chain(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnTransition = chain(out.OnTransition, h.OnTransition)
		out.OnWebhookCall = chain(out.OnWebhookCall, h.OnWebhookCall)
		out.OnWebhookReturn = chain(out.OnWebhookReturn, h.OnWebhookReturn)
	}
	return out
}

func chain[E any](first, second func(context.Context, E)) func(context.Context, E) {
	if first == nil {
		return second
	}
	if second == nil {
		return first
	}
	return func(ctx context.Context, e E) {
		first(ctx, e)
		second(ctx, e)
	}
}

// LoggingHooks writes an info-level audit line per node entry, transition and webhook result.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.InfoContext(ctx, "node_enter", "call_id", e.CallID, "node_id", e.NodeID, "kind", e.NodeKind)
		},
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.InfoContext(ctx, "transition", "call_id", e.CallID, "from", e.From, "to", e.To, "rule", e.Rule)
		},
		OnWebhookReturn: func(ctx context.Context, e *domain.WebhookEvent) {
			logger.InfoContext(ctx, "webhook_return",
				"call_id", e.CallID,
				"node_id", e.NodeID,
				"webhook_url", e.URL,
				"status_code", e.StatusCode,
				"is_error", e.IsError,
				"async", e.Async,
			)
		},
	}
}
