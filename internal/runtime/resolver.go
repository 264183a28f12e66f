package runtime

import (
	"context"
	"log/slog"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
)

// Routing rules reported in transition events.
const (
	RuleFixed             = "fixed"
	RuleAfterResponse     = "after_response"
	RuleConditional       = "conditional"
	RuleLogicSplit        = "logic_split"
	RuleLogicSplitDefault = "logic_split_default"
	RuleDigit             = "digit"
)

// Resolution is the outcome of evaluating a node's transitions.
type Resolution struct {
	Target       string
	Rule         string
	TransitionID string
}

// Matched reports whether a target was chosen.
func (r Resolution) Matched() bool {
	return r.Target != ""
}

// Resolver picks the next node of conditional nodes and logic splits.
type Resolver struct {
	judge  ports.Judge
	vars   *Variables
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil judge never satisfies a condition.
func NewResolver(judge ports.Judge, vars *Variables, logger *slog.Logger) *Resolver {
	return &Resolver{judge: judge, vars: vars, logger: logger}
}

// Conditional evaluates transitions in array order and returns the first satisfied one.
// A transition whose check_variables are not all bound is skipped without asking the judge.
// Judge errors count as "not satisfied".
func (r *Resolver) Conditional(ctx context.Context, transitions []domain.Transition, turn ports.TurnContext) Resolution {
	for _, t := range transitions {
		if !r.gateOpen(t) {
			r.logger.Debug("transition gated", "node_id", turn.NodeID, "transition", t.ID, "check_variables", t.CheckVariables)
			continue
		}
		if r.judge == nil {
			continue
		}

		ok, err := r.judge.Evaluate(ctx, t.Condition, turn)
		if err != nil {
			r.logger.Warn("judge failed, treating condition as not met",
				"node_id", turn.NodeID,
				"transition", t.ID,
				"err", err,
			)
			continue
		}
		if ok {
			return Resolution{Target: t.NextNode, Rule: RuleConditional, TransitionID: t.ID}
		}
	}
	return Resolution{}
}

func (r *Resolver) gateOpen(t domain.Transition) bool {
	for _, name := range t.CheckVariables {
		if !r.vars.IsBound(name) {
			return false
		}
	}
	return true
}

// LogicSplit evaluates a logic_split node. It never consults the judge.
// It fails with *domain.ResolutionDeadlockError when nothing matches and there is no default.
func (r *Resolver) LogicSplit(nodeID string, data *domain.LogicSplitData) (Resolution, error) {
	for _, c := range data.Conditions {
		if EvaluateCondition(c, r.vars) {
			return Resolution{Target: c.NextNode, Rule: RuleLogicSplit}, nil
		}
	}
	if data.DefaultNextNode != "" {
		return Resolution{Target: data.DefaultNextNode, Rule: RuleLogicSplitDefault}, nil
	}
	return Resolution{}, &domain.ResolutionDeadlockError{
		NodeID:   nodeID,
		Attempts: 1,
		Reason:   "no condition matched and default_next_node is unset",
	}
}
