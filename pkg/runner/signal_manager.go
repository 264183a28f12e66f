package runner

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalManager cancels a context on SIGINT or SIGTERM so a simulated call hangs up cleanly.
type SignalManager struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSignalManager creates a manager and immediately starts listening for signals.
func NewSignalManager(parent context.Context) *SignalManager {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return &SignalManager{ctx: ctx, cancel: cancel}
}

// Context is cancelled when a signal arrives.
func (sm *SignalManager) Context() context.Context {
	return sm.ctx
}

// Stop stops listening for signals.
func (sm *SignalManager) Stop() {
	sm.cancel()
}
