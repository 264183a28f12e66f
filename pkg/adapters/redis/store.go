// Package redis provides Redis-backed call state, flow storage and distributed locking.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/ringwire/callflow/pkg/domain"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "callflow:"

// farFuture scores index entries of calls without a TTL.
const farFuture = 4102444800 // 2100-01-01

// Store implements ports.StateStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithTTL sets the expiration for calls. Zero keeps them until deleted.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a store with its own client.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a store over an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, so that a Locker or Repository can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(callID string) string {
	return s.prefix + "call:" + callID
}

func (s *Store) indexKey() string {
	return s.prefix + "call-index"
}

// Save persists the state and indexes the call by expiry.
func (s *Store) Save(ctx context.Context, callID string, state *domain.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal call %s: %w", callID, err)
	}

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = farFuture
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(callID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: callID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save call %s: %w", callID, err)
	}
	return nil
}

// Load retrieves the state.
func (s *Store) Load(ctx context.Context, callID string) (*domain.SessionState, error) {
	val, err := s.client.Get(ctx, s.key(callID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load call %s: %w", callID, err)
	}

	var state domain.SessionState
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, fmt.Errorf("unmarshal call %s: %w", callID, err)
	}
	return &state, nil
}

// Delete removes the call.
func (s *Store) Delete(ctx context.Context, callID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(callID))
	pipe.ZRem(ctx, s.indexKey(), callID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns live calls. Expired entries are pruned from the index first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("prune expired calls: %w", err)
	}

	calls, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return calls, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
