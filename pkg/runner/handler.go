package runner

import (
	"context"

	"github.com/ringwire/callflow/pkg/domain"
)

// IOHandler defines the strategy for interacting with the simulated caller.
// This allows switching between Text (CLI) and JSON (structured) modes.
type IOHandler interface {
	// Output presents a turn's result.
	Output(ctx context.Context, res *domain.TurnResult) error

	// Input reads the caller's next turn.
	Input(ctx context.Context) (domain.Input, error)

	// SystemOutput presents a meta-message that is not part of the call.
	SystemOutput(ctx context.Context, msg string) error
}

// ContentRenderer transforms spoken text before it is written, e.g. markdown to ANSI.
type ContentRenderer func(string) (string, error)
