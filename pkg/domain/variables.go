package domain

import "fmt"

// RepromptType selects how a reprompt is delivered.
type RepromptType string

const (
	RepromptStatic RepromptType = "static"
	RepromptPrompt RepromptType = "prompt"
)

// ExtractVariableSpec is a rule for capturing a named value from the conversation.
type ExtractVariableSpec struct {
	Name           string       `json:"name" yaml:"name" mapstructure:"name"`
	Description    string       `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
	ExtractionHint string       `json:"extraction_hint,omitempty" yaml:"extraction_hint,omitempty" mapstructure:"extraction_hint"`
	AllowUpdate    bool         `json:"allow_update,omitempty" yaml:"allow_update,omitempty" mapstructure:"allow_update"`
	Required       bool         `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
	RepromptType   RepromptType `json:"reprompt_type,omitempty" yaml:"reprompt_type,omitempty" mapstructure:"reprompt_type"`
	RepromptText   string       `json:"reprompt_text,omitempty" yaml:"reprompt_text,omitempty" mapstructure:"reprompt_text"`

	// Mandatory is the legacy spelling of Required. It is folded into Required on decode.
	Mandatory bool `json:"-" yaml:"-" mapstructure:"mandatory"`
}

// IsRequired reports whether the variable gates progress.
func (s ExtractVariableSpec) IsRequired() bool {
	return s.Required || s.Mandatory
}

// Reprompt is what the dialogue collaborator receives when a required variable is missing.
type Reprompt struct {
	Variable string `json:"variable"`
	Text     string `json:"text"`
	// Verbatim text must be spoken exactly; otherwise Text is a generation instruction.
	Verbatim bool `json:"verbatim"`
}

// RepromptFor selects the reprompt for a spec.
// Static text is returned verbatim. Prompt text, or an empty text, becomes an instruction.
func RepromptFor(spec ExtractVariableSpec) Reprompt {
	if spec.RepromptText == "" {
		desc := spec.Description
		if desc == "" {
			desc = spec.Name
		}
		return Reprompt{
			Variable: spec.Name,
			Text:     fmt.Sprintf("Politely ask the caller again for their %s.", desc),
		}
	}
	return Reprompt{
		Variable: spec.Name,
		Text:     spec.RepromptText,
		Verbatim: spec.RepromptType == RepromptStatic,
	}
}
