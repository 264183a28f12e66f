package domain

import "time"

// SessionStatus is the lifecycle stage of a call.
type SessionStatus string

const (
	StatusActive      SessionStatus = "active"      // waiting for the caller
	StatusTransferred SessionStatus = "transferred" // handed to telephony
	StatusEnded       SessionStatus = "ended"       // ending node reached or call closed
	StatusFailed      SessionStatus = "failed"      // resolution deadlock
)

// Done reports whether the status is final.
func (s SessionStatus) Done() bool {
	return s != StatusActive && s != ""
}

// Speaker identifies who produced a transcript line.
type Speaker string

const (
	SpeakerAgent  Speaker = "agent"
	SpeakerCaller Speaker = "caller"
)

// Utterance is one line of the conversation.
type Utterance struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	NodeID  string    `json:"node_id,omitempty"`
	At      time.Time `json:"at"`
}

// Visit is the bookkeeping of the current stay on a node.
// It resets whenever the session moves to a different node.
type Visit struct {
	NodeID string `json:"node_id"`
	// UnresolvedTurns counts turns that ended without a matching transition.
	UnresolvedTurns int `json:"unresolved_turns,omitempty"`
	// EffectFired prevents a webhook or SMS from being sent twice in one visit.
	EffectFired bool `json:"effect_fired,omitempty"`
	// AwaitingResponse is set while an AfterAnyResponse node waits for its utterance.
	AwaitingResponse bool `json:"awaiting_response,omitempty"`
}

// SessionState is the persisted snapshot of one call.
type SessionState struct {
	CallID        string         `json:"call_id"`
	AgentID       string         `json:"agent_id"`
	CurrentNodeID string         `json:"current_node_id"`
	Status        SessionStatus  `json:"status"`
	Variables     map[string]any `json:"variables"`

	// FlowVersion and Flow pin the flow the call started on, so that a flow
	// saved mid-call only affects later calls, on every replica.
	FlowVersion string `json:"flow_version,omitempty"`
	Flow        *Flow  `json:"flow,omitempty"`

	// Pending lists variables awaiting an asynchronous webhook.
	Pending []string `json:"pending,omitempty"`

	Transcript []Utterance `json:"transcript,omitempty"`
	History    []string    `json:"history"`
	Visit      Visit       `json:"visit"`

	// Outcome describes why the call ended, if it has.
	Outcome   string    `json:"outcome,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionState creates a clean state positioned at the start node.
func NewSessionState(callID, agentID, startNodeID string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		CallID:        callID,
		AgentID:       agentID,
		CurrentNodeID: startNodeID,
		Status:        StatusActive,
		Variables:     make(map[string]any),
		History:       []string{startNodeID},
		Visit:         Visit{NodeID: startNodeID},
		StartedAt:     now,
		UpdatedAt:     now,
	}
}
