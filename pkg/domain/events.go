package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventNodeEnter     EventType = "node_enter"
	EventNodeLeave     EventType = "node_leave"
	EventTransition    EventType = "transition"
	EventWebhookCall   EventType = "webhook_call"
	EventWebhookReturn EventType = "webhook_return"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	CallID    string    `json:"call_id"`
	AgentID   string    `json:"agent_id"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID   string   `json:"node_id"`
	NodeKind NodeKind `json:"node_kind"`
}

// TransitionEvent records a move between nodes.
type TransitionEvent struct {
	EventBase
	From string `json:"from"`
	To   string `json:"to"`
	// Rule names the routing rule that fired, e.g. "fixed", "conditional", "logic_split".
	Rule string `json:"rule"`
}

// WebhookEvent represents a webhook invocation.
type WebhookEvent struct {
	EventBase
	NodeID     string        `json:"node_id"`
	URL        string        `json:"url"`
	Method     string        `json:"method"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	IsError    bool          `json:"is_error,omitempty"`
	Async      bool          `json:"async,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
type LifecycleHooks struct {
	OnNodeEnter     func(context.Context, *NodeEvent)
	OnNodeLeave     func(context.Context, *NodeEvent)
	OnTransition    func(context.Context, *TransitionEvent)
	OnWebhookCall   func(context.Context, *WebhookEvent)
	OnWebhookReturn func(context.Context, *WebhookEvent)
}
