package ports

import (
	"context"
	"testing"
	"time"

	"github.com/ringwire/callflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStateStoreContract verifies that a StateStore implementation honours the interface contract.
func RunStateStoreContract(t *testing.T, store StateStore) {
	ctx := context.Background()
	callID := "contract-call-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewSessionState(callID, "agent-1", "start")
		state.Variables["name"] = "Ana"
		state.Variables["webhook_response"] = map[string]any{"status": "ok"}
		state.Transcript = append(state.Transcript, domain.Utterance{Speaker: domain.SpeakerCaller, Text: "hello"})
		state.Visit.UnresolvedTurns = 2

		require.NoError(t, store.Save(ctx, callID, state))

		loaded, err := store.Load(ctx, callID)
		require.NoError(t, err)
		assert.Equal(t, state.CurrentNodeID, loaded.CurrentNodeID)
		assert.Equal(t, state.AgentID, loaded.AgentID)
		assert.Equal(t, "Ana", loaded.Variables["name"])
		assert.Equal(t, map[string]any{"status": "ok"}, loaded.Variables["webhook_response"])
		assert.Equal(t, 2, loaded.Visit.UnresolvedTurns)
		require.Len(t, loaded.Transcript, 1)
		assert.Equal(t, "hello", loaded.Transcript[0].Text)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+callID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, callID, domain.NewSessionState(callID, "agent-1", "start")))
		require.NoError(t, store.Delete(ctx, callID))

		_, err := store.Load(ctx, callID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := callID + "-1"
		id2 := callID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewSessionState(id1, "agent-1", "start")))
		require.NoError(t, store.Save(ctx, id2, domain.NewSessionState(id2, "agent-1", "start")))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		calls, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, calls, id1)
		assert.Contains(t, calls, id2)
	})
}
