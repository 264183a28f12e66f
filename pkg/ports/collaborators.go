package ports

import (
	"context"

	"github.com/ringwire/callflow/pkg/domain"
)

// TurnContext is the view of the call handed to the collaborators.
type TurnContext struct {
	CallID     string
	AgentID    string
	NodeID     string
	Transcript []domain.Utterance
	// Variables is a read-only copy of the bound variables.
	Variables map[string]any
}

// LastCallerUtterance returns the most recent caller line, if any.
func (t TurnContext) LastCallerUtterance() string {
	for i := len(t.Transcript) - 1; i >= 0; i-- {
		if t.Transcript[i].Speaker == domain.SpeakerCaller {
			return t.Transcript[i].Text
		}
	}
	return ""
}

// Judge decides whether a natural-language transition condition currently holds.
// An error is treated by the engine as "not satisfied".
type Judge interface {
	Evaluate(ctx context.Context, condition string, turn TurnContext) (bool, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, condition string, turn TurnContext) (bool, error)

// Evaluate implements Judge.
func (f JudgeFunc) Evaluate(ctx context.Context, condition string, turn TurnContext) (bool, error) {
	return f(ctx, condition, turn)
}

// Extractor populates one variable from the conversation.
// It returns ok=false when the value could not be found; the variable then stays unbound.
type Extractor interface {
	Extract(ctx context.Context, spec domain.ExtractVariableSpec, turn TurnContext) (value any, ok bool, err error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, spec domain.ExtractVariableSpec, turn TurnContext) (any, bool, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, spec domain.ExtractVariableSpec, turn TurnContext) (any, bool, error) {
	return f(ctx, spec, turn)
}
