package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ringwire/callflow/pkg/domain"
)

// Metrics holds the Prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	NodeVisits      *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	CallsFinished   *prometheus.CounterVec
	WebhookRequests *prometheus.CounterVec
	WebhookDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callflow_node_visits_total",
			Help: "Node entries by agent and node kind.",
		}, []string{"agent_id", "node_kind"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callflow_transitions_total",
			Help: "Transitions by agent and the rule that fired.",
		}, []string{"agent_id", "rule"}),
		CallsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callflow_calls_finished_total",
			Help: "Calls that reached a terminal node, by agent and node kind.",
		}, []string{"agent_id", "node_kind"}),
		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callflow_webhook_requests_total",
			Help: "Webhook invocations by agent, outcome and mode.",
		}, []string{"agent_id", "outcome", "mode"}),
		WebhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callflow_webhook_duration_seconds",
			Help:    "Webhook round trip time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent_id"}),
	}
	if reg != nil {
		reg.MustRegister(m.NodeVisits, m.Transitions, m.CallsFinished, m.WebhookRequests, m.WebhookDuration)
	}
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.AgentID, string(e.NodeKind)).Inc()
			if e.NodeKind.Terminal() {
				m.CallsFinished.WithLabelValues(e.AgentID, string(e.NodeKind)).Inc()
			}
		},
		OnTransition: func(_ context.Context, e *domain.TransitionEvent) {
			m.Transitions.WithLabelValues(e.AgentID, e.Rule).Inc()
		},
		OnWebhookReturn: func(_ context.Context, e *domain.WebhookEvent) {
			outcome := "success"
			if e.IsError {
				outcome = "error"
			}
			mode := "sync"
			if e.Async {
				mode = "async"
			}
			m.WebhookRequests.WithLabelValues(e.AgentID, outcome, mode).Inc()
			m.WebhookDuration.WithLabelValues(e.AgentID).Observe(e.Duration.Seconds())
		},
	}
}
