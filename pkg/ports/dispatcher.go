package ports

import (
	"context"

	"github.com/ringwire/callflow/pkg/domain"
)

// ActionDispatcher performs the actions emitted by a turn.
// The telephony host implements it; the CLI simulator prints them.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, req domain.ActionRequest) error
}
