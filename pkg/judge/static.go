package judge

import (
	"context"
	"sync"

	"github.com/ringwire/callflow/pkg/ports"
)

// Static answers from a fixed table. Unknown conditions are not satisfied.
type Static struct {
	mu      sync.Mutex
	answers map[string]bool
	asked   []string
}

// NewStatic creates a judge answering from answers.
func NewStatic(answers map[string]bool) *Static {
	s := &Static{answers: make(map[string]bool, len(answers))}
	for k, v := range answers {
		s.answers[k] = v
	}
	return s
}

// Set changes the answer for a condition.
func (s *Static) Set(condition string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[condition] = ok
}

// Asked returns the conditions evaluated so far, in order.
func (s *Static) Asked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.asked...)
}

// Evaluate implements ports.Judge.
func (s *Static) Evaluate(_ context.Context, condition string, _ ports.TurnContext) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, condition)
	return s.answers[condition], nil
}
