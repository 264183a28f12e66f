package domain

// Input is one caller turn. Digit is set for DTMF presses, Text for speech.
type Input struct {
	Text  string `json:"text,omitempty"`
	Digit string `json:"digit,omitempty"`
}

// WebhookOutcome summarises the webhook activity of a turn.
type WebhookOutcome struct {
	NodeID     string `json:"node_id"`
	URL        string `json:"url"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
	// Async is set when the session moved on without waiting for the response.
	Async bool `json:"async,omitempty"`
	// Blocked lists schema properties that had no bound variable; nothing was sent.
	Blocked []string `json:"blocked,omitempty"`
}

// TurnResult is what the host receives after starting a call or submitting a turn.
type TurnResult struct {
	CallID  string          `json:"call_id"`
	NodeID  string          `json:"node_id"`
	Status  SessionStatus   `json:"status"`
	Actions []ActionRequest `json:"actions"`

	// Gated is set when required variables kept the session on its node.
	Gated   bool     `json:"gated,omitempty"`
	Missing []string `json:"missing,omitempty"`

	Webhooks []WebhookOutcome `json:"webhooks,omitempty"`
	Diff     *StateDiff       `json:"diff,omitempty"`
}
