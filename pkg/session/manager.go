package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ringwire/callflow/internal/logging"
	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a call.
const DefaultLockTTL = 30 * time.Second

// ErrCallExists is returned by Create when the call id is taken.
var ErrCallExists = errors.New("call already exists")

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates access to call state.
// Locks are reference counted and dropped once no goroutine holds or waits on them.
type Manager struct {
	store ports.StateStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over store.
func NewManager(store ports.StateStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu and call release after unlocking.
func (m *Manager) acquire(callID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[callID]
	if !exists {
		entry = &lockEntry{}
		m.locks[callID] = entry
	}
	entry.refs++
	return entry
}

func (m *Manager) release(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[callID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, callID)
	}
}

// Create persists a new call, failing with ErrCallExists if the id is taken.
func (m *Manager) Create(ctx context.Context, state *domain.SessionState) error {
	return m.WithLock(ctx, state.CallID, func(ctx context.Context) error {
		_, err := m.store.Load(ctx, state.CallID)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrCallExists, state.CallID)
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return fmt.Errorf("check call %s: %w", state.CallID, err)
		}
		return m.store.Save(ctx, state.CallID, state)
	})
}

// Load retrieves a call from the store.
func (m *Manager) Load(ctx context.Context, callID string) (*domain.SessionState, error) {
	var state *domain.SessionState
	err := m.WithLock(ctx, callID, func(ctx context.Context) error {
		var err error
		state, err = m.store.Load(ctx, callID)
		return err
	})
	return state, err
}

// Save persists the call state.
func (m *Manager) Save(ctx context.Context, state *domain.SessionState) error {
	return m.WithLock(ctx, state.CallID, func(ctx context.Context) error {
		return m.store.Save(ctx, state.CallID, state)
	})
}

// Delete removes the call from the store.
func (m *Manager) Delete(ctx context.Context, callID string) error {
	return m.WithLock(ctx, callID, func(ctx context.Context) error {
		return m.store.Delete(ctx, callID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying state store.
func (m *Manager) Store() ports.StateStore {
	return m.store
}

// WithLock runs fn while holding the lock for the call.
// fn must use the store directly; calling back into the Manager for the same id deadlocks.
func (m *Manager) WithLock(ctx context.Context, callID string, fn func(context.Context) error) error {
	entry := m.acquire(callID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(callID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, callID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock, it will expire via TTL",
					"call_id", callID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
