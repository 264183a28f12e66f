package domain

// Transition is a conditionally taken edge to another node.
type Transition struct {
	ID string `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`

	// Condition is natural language handed to the Judge.
	Condition string `json:"condition" yaml:"condition" mapstructure:"condition"`

	NextNode string `json:"next_node" yaml:"next_node" mapstructure:"next_node"`

	// CheckVariables must all be bound before the condition is even considered.
	CheckVariables []string `json:"check_variables,omitempty" yaml:"check_variables,omitempty" mapstructure:"check_variables"`
}

// TransitionStrategy decides how a node leaves. Exactly one variant applies per node.
type TransitionStrategy interface {
	// Targets lists the node ids this strategy may route to.
	Targets() []string
	isStrategy()
}

// Fixed moves to Target unconditionally, without waiting for the caller.
type Fixed struct {
	Target string
}

// AfterAnyResponse waits for one utterance and then moves to Target.
type AfterAnyResponse struct {
	Target string
}

// Conditional asks the judge about each transition in order.
type Conditional struct {
	Transitions []Transition
}

func (Fixed) isStrategy()            {}
func (AfterAnyResponse) isStrategy() {}
func (Conditional) isStrategy()      {}

func (s Fixed) Targets() []string            { return []string{s.Target} }
func (s AfterAnyResponse) Targets() []string { return []string{s.Target} }

func (s Conditional) Targets() []string {
	targets := make([]string, 0, len(s.Transitions))
	for _, t := range s.Transitions {
		targets = append(targets, t.NextNode)
	}
	return targets
}

// HasTransitions reports whether a strategy routes anywhere at all.
func HasTransitions(s TransitionStrategy) bool {
	switch v := s.(type) {
	case nil:
		return false
	case Conditional:
		return len(v.Transitions) > 0
	default:
		return true
	}
}
