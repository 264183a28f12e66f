package extract

import (
	"context"
	"sync"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
)

// Static binds values from a fixed table, regardless of the conversation.
type Static struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewStatic creates an extractor returning values.
func NewStatic(values map[string]any) *Static {
	s := &Static{values: make(map[string]any, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Set changes the value returned for name.
func (s *Static) Set(name string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Extract implements ports.Extractor.
func (s *Static) Extract(_ context.Context, spec domain.ExtractVariableSpec, _ ports.TurnContext) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[spec.Name]
	return v, ok, nil
}
