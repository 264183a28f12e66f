// Package file stores flows and call state on the local filesystem.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ringwire/callflow/pkg/domain"
)

// Store implements ports.StateStore with one JSON file per call.
type Store struct {
	BasePath string
}

// NewStore creates a Store under basePath, ".callflow/calls" when empty.
func NewStore(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".callflow", "calls")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(callID string) string {
	return filepath.Join(s.BasePath, callID+".json")
}

// Save writes the call state atomically.
func (s *Store) Save(_ context.Context, callID string, state *domain.SessionState) error {
	if err := validID(callID); err != nil {
		return err
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal call %s: %w", callID, err)
	}
	return writeAtomic(s.path(callID), data)
}

// Load reads the call state.
func (s *Store) Load(_ context.Context, callID string) (*domain.SessionState, error) {
	if err := validID(callID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(callID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("read call %s: %w", callID, err)
	}

	var state domain.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal call %s: %w", callID, err)
	}
	return &state, nil
}

// Delete removes the call file. Missing calls are not an error.
func (s *Store) Delete(_ context.Context, callID string) error {
	if err := validID(callID); err != nil {
		return err
	}
	if err := os.Remove(s.path(callID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete call %s: %w", callID, err)
	}
	return nil
}

// List returns stored call ids, sorted.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list calls: %w", err)
	}

	calls := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "tmp-") || filepath.Ext(name) != ".json" {
			continue
		}
		calls = append(calls, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(calls)
	return calls, nil
}
