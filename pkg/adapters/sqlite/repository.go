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

// Repository implements ports.FlowRepository.
type Repository struct {
	db *DB
}

// NewRepository creates a flow repository on db.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// GetFlow loads the agent's flow.
func (r *Repository) GetFlow(ctx context.Context, agentID string) (*domain.Flow, error) {
	var doc string
	err := r.db.sql.QueryRowContext(ctx, "SELECT document FROM flows WHERE agent_id = ?", agentID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: agent '%s'", domain.ErrFlowNotFound, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("load flow for agent %s: %w", agentID, err)
	}
	return domain.ParseFlowJSON([]byte(doc))
}

// ReplaceFlow upserts the agent's flow.
func (r *Repository) ReplaceFlow(ctx context.Context, agentID string, flow *domain.Flow) error {
	doc, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("encode flow for agent %s: %w", agentID, err)
	}
	_, err = r.db.sql.ExecContext(ctx, `
		INSERT INTO flows (agent_id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		agentID, string(doc), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save flow for agent %s: %w", agentID, err)
	}
	return nil
}

// ListAgents returns the agents with a flow, sorted.
func (r *Repository) ListAgents(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, r.db.sql, "SELECT agent_id FROM flows ORDER BY agent_id")
}

func queryStrings(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
