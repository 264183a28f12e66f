package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ringwire/callflow/pkg/domain"
)

// Store implements ports.StateStore in memory.
// States are kept serialised so callers never share maps with the store.
type Store struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Save persists the state in memory.
func (s *Store) Save(_ context.Context, callID string, state *domain.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode call %s: %w", callID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[callID] = raw
	return nil
}

// Load retrieves the state from memory.
func (s *Store) Load(_ context.Context, callID string) (*domain.SessionState, error) {
	s.mu.RLock()
	raw, ok := s.data[callID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	var state domain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode call %s: %w", callID, err)
	}
	return &state, nil
}

// Delete removes the state.
func (s *Store) Delete(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, callID)
	return nil
}

// List returns stored call ids, sorted.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	calls := make([]string, 0, len(s.data))
	for id := range s.data {
		calls = append(calls, id)
	}
	sort.Strings(calls)
	return calls, nil
}
