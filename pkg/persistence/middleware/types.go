// Package middleware decorates a ports.StateStore with cross-cutting
// persistence behaviour such as encryption at rest and redaction of
// caller data once a call is over.
package middleware

import "github.com/ringwire/callflow/pkg/ports"

// Middleware wraps a StateStore to add behaviour.
type Middleware func(ports.StateStore) ports.StateStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.StateStore, mws ...Middleware) ports.StateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
