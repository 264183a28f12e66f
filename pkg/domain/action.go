package domain

// ActionRequest is something the engine asks the telephony or dialogue host to do.
type ActionRequest struct {
	Type    string `json:"type"`
	NodeID  string `json:"node_id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Standard Action Types
const (
	// ActionSpeak asks the dialogue collaborator to say or generate a line.
	// Payload: Speech
	ActionSpeak = "SPEAK"

	// ActionGoalNudge informs the dialogue collaborator of the node goal so it
	// can steer the next caller turn.
	// Payload: string (the goal)
	ActionGoalNudge = "GOAL_NUDGE"

	// ActionReprompt asks again for a required variable.
	// Payload: Reprompt
	ActionReprompt = "REPROMPT"

	// ActionRequestInput asks the host to listen to the caller.
	// Payload: InputRequest
	ActionRequestInput = "REQUEST_INPUT"

	// ActionSendSMS sends a text message.
	// Payload: SMS
	ActionSendSMS = "SEND_SMS"

	// ActionTransferCall hands the call to a phone number.
	// Payload: CallTransfer
	ActionTransferCall = "TRANSFER_CALL"

	// ActionTransferAgent hands the call to another voice agent.
	// Payload: AgentTransfer
	ActionTransferAgent = "TRANSFER_AGENT"

	// ActionEndCall hangs up.
	// Payload: EndCall
	ActionEndCall = "END_CALL"
)

// Speech is a line for the dialogue collaborator.
// Verbatim text must be spoken exactly; otherwise Text is an instruction to generate from.
type Speech struct {
	Text               string `json:"text"`
	Verbatim           bool   `json:"verbatim"`
	BlockInterruptions bool   `json:"block_interruptions,omitempty"`
}

// SpeechFor converts authored content into a Speech.
func SpeechFor(c Content) Speech {
	return Speech{Text: c.Text, Verbatim: c.Verbatim()}
}

// InputType is the kind of caller input the host should collect.
type InputType string

const (
	InputSpeech InputType = "speech"
	InputDTMF   InputType = "dtmf"
)

// InputRequest describes the input needed from the caller.
type InputRequest struct {
	Type   InputType `json:"type"`
	Digits []string  `json:"digits,omitempty"`
}

// SMS is the payload of ActionSendSMS.
type SMS struct {
	To      string `json:"to,omitempty"`
	Message string `json:"message"`
}

// CallTransfer is the payload of ActionTransferCall.
type CallTransfer struct {
	PhoneNumber  string       `json:"phone_number"`
	TransferType TransferType `json:"transfer_type,omitempty"`
	Speech       *Speech      `json:"speech,omitempty"`
}

// AgentTransfer is the payload of ActionTransferAgent.
type AgentTransfer struct {
	AgentID string  `json:"agent_id"`
	Speech  *Speech `json:"speech,omitempty"`
}

// End reasons carried by EndCall.
const (
	EndReasonCompleted  = "completed"
	EndReasonFlowDefect = "flow_defect"
	EndReasonHangup     = "hangup"
)

// EndCall is the payload of ActionEndCall.
type EndCall struct {
	Reason string  `json:"reason"`
	Speech *Speech `json:"speech,omitempty"`
}
