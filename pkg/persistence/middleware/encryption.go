package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/ringwire/callflow/pkg/ports"
)

// sealedKey holds the ciphertext inside the envelope's variables.
const sealedKey = "__sealed__"

// ErrNotSealed is returned when a stored call carries no ciphertext.
var ErrNotSealed = errors.New("call state is not sealed")

// EncryptionConfig holds the AES-256 keys.
type EncryptionConfig struct {
	// ActiveKey seals new state. Must be 32 bytes.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot open a
	// stored state, so keys can be rotated without draining live calls.
	FallbackKeys [][]byte
}

// Validate checks key sizes.
func (c EncryptionConfig) Validate() error {
	if len(c.ActiveKey) != 32 {
		return fmt.Errorf("active key must be 32 bytes, got %d", len(c.ActiveKey))
	}
	for i, k := range c.FallbackKeys {
		if len(k) != 32 {
			return fmt.Errorf("fallback key %d must be 32 bytes, got %d", i, len(k))
		}
	}
	return nil
}

type encryptionMiddleware struct {
	next   ports.StateStore
	config EncryptionConfig
}

// NewEncryption seals call state with AES-GCM before it reaches the store.
//
// The stored envelope keeps the routing metadata (agent, node, status and
// timestamps) readable for operators; variables, transcript, pending
// webhooks and history only exist inside the ciphertext.
func NewEncryption(config EncryptionConfig) (Middleware, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return func(next ports.StateStore) ports.StateStore {
		return &encryptionMiddleware{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, callID string, state *domain.SessionState) error {
	plain, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode call %s: %w", callID, err)
	}
	sealed, err := seal(plain, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("seal call %s: %w", callID, err)
	}

	envelope := &domain.SessionState{
		CallID:        state.CallID,
		AgentID:       state.AgentID,
		CurrentNodeID: state.CurrentNodeID,
		Status:        state.Status,
		Outcome:       state.Outcome,
		StartedAt:     state.StartedAt,
		UpdatedAt:     state.UpdatedAt,
		Variables: map[string]any{
			sealedKey: base64.StdEncoding.EncodeToString(sealed),
		},
	}
	return m.next.Save(ctx, callID, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, callID string) (*domain.SessionState, error) {
	envelope, err := m.next.Load(ctx, callID)
	if err != nil {
		return nil, err
	}

	encoded, ok := envelope.Variables[sealedKey].(string)
	if !ok {
		return nil, fmt.Errorf("call %s: %w", callID, ErrNotSealed)
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode sealed call %s: %w", callID, err)
	}

	plain, err := openWithRotation(sealed, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("open call %s: %w", callID, err)
	}

	var state domain.SessionState
	if err := json.Unmarshal(plain, &state); err != nil {
		return nil, fmt.Errorf("decode call %s: %w", callID, err)
	}
	return &state, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, callID string) error {
	return m.next.Delete(ctx, callID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func seal(plain, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func openWithRotation(sealed, active []byte, fallbacks [][]byte) ([]byte, error) {
	if plain, err := open(sealed, active); err == nil {
		return plain, nil
	}
	for _, key := range fallbacks {
		if plain, err := open(sealed, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("no key could open the sealed state")
}

func open(sealed, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("sealed state too short")
	}
	nonce, body := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
