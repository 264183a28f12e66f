package ports

import (
	"context"

	"github.com/ringwire/callflow/pkg/domain"
)

// StateStore persists call snapshots so that a call can move between replicas.
type StateStore interface {
	// Save persists the state for a given call ID.
	Save(ctx context.Context, callID string, state *domain.SessionState) error

	// Load retrieves the state for a given call ID.
	// Returns domain.ErrSessionNotFound if the call does not exist.
	Load(ctx context.Context, callID string) (*domain.SessionState, error)

	// Delete removes the state for a given call ID.
	Delete(ctx context.Context, callID string) error

	// List returns the IDs of every stored call.
	List(ctx context.Context) ([]string, error)
}
