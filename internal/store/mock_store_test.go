package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The mock must agree with the SQLite store on the behaviors the sync
// engine depends on: ordering, session-key lookup, and re-read after a
// token hash update.

func TestMockStore_ListAgentsByBoards_Order(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	boardID := "board-1"
	base := time.Now().UTC()
	for i, offset := range []time.Duration{2 * time.Second, 0, time.Second} {
		agent := &Agent{
			ID:        []string{"c", "a", "b"}[i],
			BoardID:   &boardID,
			Name:      []string{"third", "first", "second"}[i],
			CreatedAt: base.Add(offset),
			UpdatedAt: base.Add(offset),
		}
		require.NoError(t, m.CreateAgent(ctx, agent))
	}

	agents, err := m.ListAgentsByBoards(ctx, []string{boardID})
	require.NoError(t, err)
	require.Len(t, agents, 3)
	assert.Equal(t, "first", agents[0].Name)
	assert.Equal(t, "second", agents[1].Name)
	assert.Equal(t, "third", agents[2].Name)
}

func TestMockStore_GetAgentBySessionKey_OldestWins(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	base := time.Now().UTC()
	newer := &Agent{ID: "newer", SessionKey: "agent:x", CreatedAt: base.Add(time.Minute), UpdatedAt: base}
	older := &Agent{ID: "older", SessionKey: "agent:x", CreatedAt: base, UpdatedAt: base}
	require.NoError(t, m.CreateAgent(ctx, newer))
	require.NoError(t, m.CreateAgent(ctx, older))

	got, err := m.GetAgentBySessionKey(ctx, "agent:x")
	require.NoError(t, err)
	assert.Equal(t, "older", got.ID)
}

func TestMockStore_UpdateAgentTokenHash(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	agent := &Agent{ID: "a1", Name: "worker"}
	require.NoError(t, m.CreateAgent(ctx, agent))

	updated, err := m.UpdateAgentTokenHash(ctx, "a1", "hash")
	require.NoError(t, err)
	assert.Equal(t, "hash", updated.TokenHash)

	reread, err := m.GetAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "hash", reread.TokenHash)

	_, err = m.UpdateAgentTokenHash(ctx, "missing", "hash")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMockStore_CopiesOnReadAndWrite(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()

	gw := &Gateway{ID: "g1", Name: "gw", URL: "wss://example.com"}
	require.NoError(t, m.CreateGateway(ctx, gw))

	got, err := m.GetGateway(ctx, "g1")
	require.NoError(t, err)
	got.URL = "mutated"

	again, err := m.GetGateway(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com", again.URL)
}
