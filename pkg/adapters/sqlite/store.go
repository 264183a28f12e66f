package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ringwire/callflow/pkg/domain"
)

// Store implements ports.StateStore.
type Store struct {
	db *DB
}

// NewStore creates a call state store on db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Save upserts the call state.
func (s *Store) Save(ctx context.Context, callID string, state *domain.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal call %s: %w", callID, err)
	}
	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO calls (call_id, agent_id, status, state, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(call_id) DO UPDATE SET
			agent_id = excluded.agent_id,
			status = excluded.status,
			state = excluded.state,
			updated_at = excluded.updated_at`,
		callID, state.AgentID, string(state.Status), string(raw), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save call %s: %w", callID, err)
	}
	return nil
}

// Load reads the call state.
func (s *Store) Load(ctx context.Context, callID string) (*domain.SessionState, error) {
	var raw string
	err := s.db.sql.QueryRowContext(ctx, "SELECT state FROM calls WHERE call_id = ?", callID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load call %s: %w", callID, err)
	}

	var state domain.SessionState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("unmarshal call %s: %w", callID, err)
	}
	return &state, nil
}

// Delete removes the call.
func (s *Store) Delete(ctx context.Context, callID string) error {
	if _, err := s.db.sql.ExecContext(ctx, "DELETE FROM calls WHERE call_id = ?", callID); err != nil {
		return fmt.Errorf("delete call %s: %w", callID, err)
	}
	return nil
}

// List returns stored call ids, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db.sql, "SELECT call_id FROM calls ORDER BY call_id")
}
