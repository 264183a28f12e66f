// Package judge provides deterministic ports.Judge implementations.
//
// Production deployments plug a language model in behind ports.Judge; the
// judges here serve tests, simulations and flows whose conditions are written
// as expressions.
package judge

import (
	"context"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ringwire/callflow/pkg/ports"
)

// Expr evaluates conditions as expr-lang boolean expressions.
//
// The environment holds every session variable plus user_message, call_id and node_id:
//
//	user_message contains "refund" && order_total > 100
//
// Conditions that do not compile yield an error, which the resolver treats as not satisfied.
type Expr struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExpr creates an expression judge with an empty program cache.
func NewExpr() *Expr {
	return &Expr{cache: make(map[string]*vm.Program)}
}

// Evaluate implements ports.Judge.
func (e *Expr) Evaluate(_ context.Context, condition string, turn ports.TurnContext) (bool, error) {
	program, err := e.compile(condition)
	if err != nil {
		return false, err
	}

	out, err := expr.Run(program, Env(turn))
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", condition, err)
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q did not evaluate to a boolean, got %T", condition, out)
	}
	return result, nil
}

func (e *Expr) compile(condition string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[condition]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if program, ok = e.cache[condition]; ok {
		return program, nil
	}
	program, err := expr.Compile(condition, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", condition, err)
	}
	e.cache[condition] = program
	return program, nil
}

// Env builds the expression environment for a turn.
func Env(turn ports.TurnContext) map[string]any {
	env := make(map[string]any, len(turn.Variables)+3)
	for k, v := range turn.Variables {
		env[k] = v
	}
	env["user_message"] = turn.LastCallerUtterance()
	env["call_id"] = turn.CallID
	env["node_id"] = turn.NodeID
	return env
}
