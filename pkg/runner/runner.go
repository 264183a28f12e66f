package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ringwire/callflow/internal/logging"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
)

// Runner handles the turn loop of one simulated call using the provided IO.
type Runner struct {
	calls   ports.CallService
	handler IOHandler
	logger  *slog.Logger
}

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithHandler configures the IO strategy. The default is a TextHandler on stdin/stdout.
func WithHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.handler = handler
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner over calls.
func New(calls ports.CallService, opts ...Option) *Runner {
	r := &Runner{
		calls:  calls,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.handler == nil {
		r.handler = NewTextHandler(nil, nil)
	}
	return r
}

// Run starts a call with agentID and loops until the call is over or the input ends.
// End of input and cancellation of ctx hang the call up. It returns the final
// call state; a resolution deadlock is returned as the error alongside it.
func (r *Runner) Run(ctx context.Context, agentID string) (*domain.SessionState, error) {
	res, err := r.calls.StartCall(ctx, agentID)
	if res == nil {
		return nil, err
	}
	callID := res.CallID
	r.logger.Debug("simulated call started", "call_id", callID, "agent_id", agentID)

	for {
		if outErr := r.handler.Output(ctx, res); outErr != nil {
			return nil, fmt.Errorf("output error: %w", outErr)
		}
		if err != nil {
			_ = r.handler.SystemOutput(ctx, err.Error())
			return r.final(ctx, callID, err)
		}
		if res.Status.Done() {
			_ = r.handler.SystemOutput(ctx, "call "+string(res.Status))
			return r.final(ctx, callID, nil)
		}

		input, inErr := r.handler.Input(ctx)
		if inErr != nil {
			if errors.Is(inErr, io.EOF) || ctx.Err() != nil {
				return r.hangup(ctx, callID)
			}
			return nil, fmt.Errorf("input error: %w", inErr)
		}

		res, err = r.calls.Respond(ctx, callID, input)
		if res == nil {
			return nil, err
		}
	}
}

func (r *Runner) hangup(ctx context.Context, callID string) (*domain.SessionState, error) {
	ctx = context.WithoutCancel(ctx)
	if err := r.calls.EndCall(ctx, callID); err != nil && !errors.Is(err, domain.ErrSessionClosed) {
		return nil, err
	}
	_ = r.handler.SystemOutput(ctx, "caller hung up")
	return r.final(ctx, callID, nil)
}

func (r *Runner) final(ctx context.Context, callID string, runErr error) (*domain.SessionState, error) {
	state, err := r.calls.GetCall(context.WithoutCancel(ctx), callID)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	return state, runErr
}
