package domain

// NodeKind identifies the behaviour of a node. The set is closed.
type NodeKind string

const (
	KindStart           NodeKind = "start"
	KindConversation    NodeKind = "conversation"
	KindFunction        NodeKind = "function"
	KindCallTransfer    NodeKind = "call_transfer"
	KindAgentTransfer   NodeKind = "agent_transfer"
	KindCollectInput    NodeKind = "collect_input"
	KindSendSMS         NodeKind = "send_sms"
	KindLogicSplit      NodeKind = "logic_split"
	KindPressDigit      NodeKind = "press_digit"
	KindExtractVariable NodeKind = "extract_variable"
	KindEnding          NodeKind = "ending"
)

// Kinds lists every supported node kind in display order.
var Kinds = []NodeKind{
	KindStart,
	KindConversation,
	KindFunction,
	KindCallTransfer,
	KindAgentTransfer,
	KindCollectInput,
	KindSendSMS,
	KindLogicSplit,
	KindPressDigit,
	KindExtractVariable,
	KindEnding,
}

// Valid reports whether k is one of the supported kinds.
func (k NodeKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Terminal reports whether nodes of this kind end the graph walk.
// Transfers hand the call to the telephony collaborator.
func (k NodeKind) Terminal() bool {
	return k == KindEnding || k == KindCallTransfer || k == KindAgentTransfer
}

// Node is a single conversational state of a flow.
// The Data field holds the kind-specific payload and always matches Kind.
type Node struct {
	ID    string
	Kind  NodeKind
	Label string
	Data  NodeData

	// Orphaned holds transitions found on a kind that cannot own them.
	// Validation rejects nodes where it is set.
	Orphaned TransitionStrategy
}

// NodeData is the kind-specific payload of a Node.
type NodeData interface {
	Kind() NodeKind
}

// Routed is implemented by node data that owns a transition strategy.
type Routed interface {
	NodeData
	Route() TransitionStrategy
}

// Extracting is implemented by node data that declares variables to extract.
type Extracting interface {
	NodeData
	Variables() []ExtractVariableSpec
}

// Goaled is implemented by node data that carries fallback guidance text.
type Goaled interface {
	NodeData
	GoalText() string
}

// Strategy returns the transition strategy of the node, or nil if the kind owns none.
func (n *Node) Strategy() TransitionStrategy {
	if r, ok := n.Data.(Routed); ok {
		return r.Route()
	}
	return nil
}

// ExtractVariables returns the extraction specs declared on the node.
func (n *Node) ExtractVariables() []ExtractVariableSpec {
	if e, ok := n.Data.(Extracting); ok {
		return e.Variables()
	}
	return nil
}

// Goal returns the node goal, if any.
func (n *Node) Goal() string {
	if g, ok := n.Data.(Goaled); ok {
		return g.GoalText()
	}
	return ""
}

// Targets returns every node id referenced by the node, in declaration order.
func (n *Node) Targets() []string {
	var targets []string
	if s := n.Strategy(); s != nil {
		targets = append(targets, s.Targets()...)
	}
	switch d := n.Data.(type) {
	case *LogicSplitData:
		for _, c := range d.Conditions {
			targets = append(targets, c.NextNode)
		}
		if d.DefaultNextNode != "" {
			targets = append(targets, d.DefaultNextNode)
		}
	case *PressDigitData:
		for _, m := range d.Digits {
			targets = append(targets, m.NextNode)
		}
	}
	return targets
}

// DialogueType tells the dialogue collaborator how to treat a piece of text.
type DialogueType string

const (
	// DialogueStatic text is spoken exactly as authored.
	DialogueStatic DialogueType = "static"
	// DialoguePrompt text is an instruction; it must never be spoken verbatim.
	DialoguePrompt DialogueType = "prompt"
)

// Content is authored text plus how it should be delivered.
type Content struct {
	DialogueType DialogueType `json:"dialogue_type,omitempty" yaml:"dialogue_type,omitempty" mapstructure:"dialogue_type"`
	Text         string       `json:"text,omitempty" yaml:"text,omitempty" mapstructure:"text"`
}

// Verbatim reports whether the text must be spoken exactly.
// Prompt is the default when the type is unset.
func (c Content) Verbatim() bool {
	return c.DialogueType == DialogueStatic
}

// Routing embeds a transition strategy into node data.
type Routing struct {
	Strategy TransitionStrategy `json:"-" yaml:"-" mapstructure:"-"`
}

// Route implements Routed.
func (r Routing) Route() TransitionStrategy {
	if r.Strategy == nil {
		return Conditional{}
	}
	return r.Strategy
}

// SetStrategy replaces the strategy.
func (r *Routing) SetStrategy(s TransitionStrategy) {
	r.Strategy = s
}

// StartData is the greeting turn and root of the flow.
type StartData struct {
	Content          `mapstructure:",squash"`
	Routing          `mapstructure:",squash"`
	Goal             string                `json:"goal,omitempty" mapstructure:"goal"`
	ExtractVariables []ExtractVariableSpec `json:"extract_variables,omitempty" mapstructure:"extract_variables"`
}

func (*StartData) Kind() NodeKind                     { return KindStart }
func (d *StartData) Variables() []ExtractVariableSpec { return d.ExtractVariables }
func (d *StartData) GoalText() string                 { return d.Goal }

// ConversationData is a scripted or generated dialogue turn.
type ConversationData struct {
	Content            `mapstructure:",squash"`
	Routing            `mapstructure:",squash"`
	Goal               string                `json:"goal,omitempty" mapstructure:"goal"`
	BlockInterruptions bool                  `json:"block_interruptions,omitempty" mapstructure:"block_interruptions"`
	ExtractVariables   []ExtractVariableSpec `json:"extract_variables,omitempty" mapstructure:"extract_variables"`
}

func (*ConversationData) Kind() NodeKind                     { return KindConversation }
func (d *ConversationData) Variables() []ExtractVariableSpec { return d.ExtractVariables }
func (d *ConversationData) GoalText() string                 { return d.Goal }

// FunctionData calls a webhook once its required variables are bound.
type FunctionData struct {
	Routing          `mapstructure:",squash"`
	Webhook          WebhookConfig         `json:"webhook" mapstructure:"webhook"`
	ExtractVariables []ExtractVariableSpec `json:"extract_variables,omitempty" mapstructure:"extract_variables"`
}

func (*FunctionData) Kind() NodeKind                     { return KindFunction }
func (d *FunctionData) Variables() []ExtractVariableSpec { return d.ExtractVariables }
func (d *FunctionData) GoalText() string                 { return d.Webhook.Goal }

// TransferType selects how a call transfer is performed.
type TransferType string

const (
	TransferCold TransferType = "cold"
	TransferWarm TransferType = "warm"
)

// CallTransferData hands the call to a phone number.
type CallTransferData struct {
	Content      `mapstructure:",squash"`
	PhoneNumber  string       `json:"phone_number" mapstructure:"phone_number"`
	TransferType TransferType `json:"transfer_type,omitempty" mapstructure:"transfer_type"`
}

func (*CallTransferData) Kind() NodeKind { return KindCallTransfer }

// AgentTransferData hands the call to another voice agent.
type AgentTransferData struct {
	Content `mapstructure:",squash"`
	AgentID string `json:"agent_id" mapstructure:"agent_id"`
}

func (*AgentTransferData) Kind() NodeKind { return KindAgentTransfer }

// CollectInputData asks the caller for specific information.
type CollectInputData struct {
	Content          `mapstructure:",squash"`
	Routing          `mapstructure:",squash"`
	Goal             string                `json:"goal,omitempty" mapstructure:"goal"`
	ExtractVariables []ExtractVariableSpec `json:"extract_variables,omitempty" mapstructure:"extract_variables"`
}

func (*CollectInputData) Kind() NodeKind                     { return KindCollectInput }
func (d *CollectInputData) Variables() []ExtractVariableSpec { return d.ExtractVariables }
func (d *CollectInputData) GoalText() string                 { return d.Goal }

// SendSMSData sends a text message to the caller. To and Message accept {{name}} placeholders.
type SendSMSData struct {
	Routing `mapstructure:",squash"`
	To      string `json:"to,omitempty" mapstructure:"to"`
	Message string `json:"message" mapstructure:"message"`
}

func (*SendSMSData) Kind() NodeKind { return KindSendSMS }

// LogicSplitData branches on bound variables without consulting the judge.
type LogicSplitData struct {
	Conditions      []LogicSplitCondition `json:"conditions" mapstructure:"conditions"`
	DefaultNextNode string                `json:"default_next_node,omitempty" mapstructure:"default_next_node"`
}

func (*LogicSplitData) Kind() NodeKind { return KindLogicSplit }

// DigitMapping routes one DTMF key to a node.
type DigitMapping struct {
	Digit    string `json:"digit" mapstructure:"digit"`
	NextNode string `json:"next_node" mapstructure:"next_node"`
}

// PressDigitData is a DTMF menu.
type PressDigitData struct {
	Content `mapstructure:",squash"`
	Digits  []DigitMapping `json:"digits" mapstructure:"digits"`
	Goal    string         `json:"goal,omitempty" mapstructure:"goal"`
}

func (*PressDigitData) Kind() NodeKind     { return KindPressDigit }
func (d *PressDigitData) GoalText() string { return d.Goal }

// Target returns the node mapped to digit.
func (d *PressDigitData) Target(digit string) (string, bool) {
	for _, m := range d.Digits {
		if m.Digit == digit {
			return m.NextNode, true
		}
	}
	return "", false
}

// ExtractVariableData extracts variables from the conversation so far.
type ExtractVariableData struct {
	Routing          `mapstructure:",squash"`
	ExtractVariables []ExtractVariableSpec `json:"extract_variables" mapstructure:"extract_variables"`
}

func (*ExtractVariableData) Kind() NodeKind                     { return KindExtractVariable }
func (d *ExtractVariableData) Variables() []ExtractVariableSpec { return d.ExtractVariables }

// EndingData ends the call.
type EndingData struct {
	Content `mapstructure:",squash"`
}

func (*EndingData) Kind() NodeKind { return KindEnding }

// NewNodeData returns an empty payload for kind.
func NewNodeData(kind NodeKind) (NodeData, bool) {
	switch kind {
	case KindStart:
		return &StartData{}, true
	case KindConversation:
		return &ConversationData{}, true
	case KindFunction:
		return &FunctionData{}, true
	case KindCallTransfer:
		return &CallTransferData{}, true
	case KindAgentTransfer:
		return &AgentTransferData{}, true
	case KindCollectInput:
		return &CollectInputData{}, true
	case KindSendSMS:
		return &SendSMSData{}, true
	case KindLogicSplit:
		return &LogicSplitData{}, true
	case KindPressDigit:
		return &PressDigitData{}, true
	case KindExtractVariable:
		return &ExtractVariableData{}, true
	case KindEnding:
		return &EndingData{}, true
	}
	return nil, false
}
