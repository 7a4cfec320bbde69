package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/openclaw-sync/internal/openclaw"
	"github.com/2389/openclaw-sync/internal/store"
	"github.com/2389/openclaw-sync/internal/tokens"
)

// fakeCaller is an in-memory openclaw.Caller driven by a handler func.
type fakeCaller struct {
	handle func(method string, params map[string]any) (any, error)
	calls  []string
}

func (f *fakeCaller) Call(ctx context.Context, cfg openclaw.Config, method string, params map[string]any) (any, error) {
	f.calls = append(f.calls, method)
	if f.handle == nil {
		return nil, &openclaw.GatewayError{Method: method, Message: "no handler installed"}
	}
	return f.handle(method, params)
}

func (f *fakeCaller) count(method string) int {
	n := 0
	for _, m := range f.calls {
		if m == method {
			n++
		}
	}
	return n
}

// provisionCall records one invocation of the fake provisioner.
type provisionCall struct {
	agentID string
	boardID string
	token   string
	main    bool
	opts    ProvisionOptions
}

// fakeProvisioner records calls and pops queued failures per agent ID.
type fakeProvisioner struct {
	calls    []provisionCall
	failures map[string][]error
}

func (f *fakeProvisioner) nextErr(agentID string) error {
	queue := f.failures[agentID]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	f.failures[agentID] = queue[1:]
	return err
}

func (f *fakeProvisioner) Provision(ctx context.Context, agent *store.Agent, board *store.Board, gw *store.Gateway, token string, opts ProvisionOptions) error {
	f.calls = append(f.calls, provisionCall{
		agentID: agent.ID,
		boardID: board.ID,
		token:   token,
		opts:    opts,
	})
	return f.nextErr(agent.ID)
}

func (f *fakeProvisioner) ProvisionMain(ctx context.Context, agent *store.Agent, gw *store.Gateway, token string, opts ProvisionOptions) error {
	f.calls = append(f.calls, provisionCall{
		agentID: agent.ID,
		token:   token,
		main:    true,
		opts:    opts,
	})
	return f.nextErr(agent.ID)
}

type fixture struct {
	store  *store.MockStore
	caller *fakeCaller
	prov   *fakeProvisioner
	syncer *Syncer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ms := store.NewMockStore()
	caller := &fakeCaller{}
	prov := &fakeProvisioner{failures: map[string][]error{}}
	syncer := New(ms, caller, prov, openclaw.RetryOptions{Attempts: 3, BaseDelay: time.Millisecond})
	syncer.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return &fixture{store: ms, caller: caller, prov: prov, syncer: syncer}
}

func (fx *fixture) cfg() openclaw.Config {
	return openclaw.Config{URL: "wss://gateway.example.com", Token: "bearer"}
}

func (fx *fixture) seedGateway(t *testing.T) *store.Gateway {
	t.Helper()
	gw := &store.Gateway{
		Name:           "gw",
		URL:            "wss://gateway.example.com",
		Token:          "bearer",
		MainSessionKey: "agent:main:prod",
	}
	require.NoError(t, fx.store.CreateGateway(context.Background(), gw))
	return gw
}

func (fx *fixture) seedBoard(t *testing.T, gw *store.Gateway, name string) *store.Board {
	t.Helper()
	board := &store.Board{GatewayID: gw.ID, Name: name}
	require.NoError(t, fx.store.CreateBoard(context.Background(), board))
	return board
}

func (fx *fixture) seedAgent(t *testing.T, board *store.Board, name, sessionKey, tokenHash string, age time.Duration) *store.Agent {
	t.Helper()
	created := time.Now().UTC().Add(-age)
	agent := &store.Agent{
		Name:       name,
		SessionKey: sessionKey,
		TokenHash:  tokenHash,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	if board != nil {
		agent.BoardID = &board.ID
	}
	require.NoError(t, fx.store.CreateAgent(context.Background(), agent))
	return agent
}

// installGateway wires the fake caller with per-gateway-agent TOOLS.md
// tokens and an agents.list payload. Agents not in the map have no
// readable TOOLS.md.
func (fx *fixture) installGateway(tokensByAgent map[string]string, listPayload any) {
	fx.caller.handle = func(method string, params map[string]any) (any, error) {
		switch method {
		case "agents.files.get":
			id, _ := params["agentId"].(string)
			tok, ok := tokensByAgent[id]
			if !ok {
				return nil, &openclaw.GatewayError{Method: method, Message: "unsupported file"}
			}
			return "AUTH_TOKEN=" + tok + "\n", nil
		case "agents.list":
			if listPayload == nil {
				return nil, &openclaw.GatewayError{Method: method, Message: "invalid params"}
			}
			return listPayload, nil
		}
		return nil, &openclaw.GatewayError{Method: method, Message: "unknown method " + method}
	}
}

func TestSync_UnconfiguredURL(t *testing.T) {
	fx := newFixture(t)
	gw := &store.Gateway{ID: "gw-1"}

	result := fx.syncer.Sync(context.Background(), gw, Options{})

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "Gateway URL is not configured")
	assert.Equal(t, 0, result.AgentsUpdated)
	assert.Equal(t, 0, result.AgentsSkipped)
	assert.False(t, result.MainUpdated)
	assert.Empty(t, fx.caller.calls)
}

func TestSync_BoardNotInGateway(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	board := fx.seedBoard(t, gw, "alpha")
	fx.seedAgent(t, board, "worker", "agent:w1", "", 0)

	result := fx.syncer.Sync(context.Background(), gw, Options{BoardID: "not-ours"})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "not-ours", result.Errors[0].BoardID)
	assert.Contains(t, result.Errors[0].Message, "does not belong to this gateway")
	assert.Equal(t, 0, result.AgentsUpdated)
	assert.Equal(t, 0, result.AgentsSkipped)
	assert.Empty(t, fx.prov.calls, "no agents processed")
}

func TestSync_BoardScopeRestriction(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	alpha := fx.seedBoard(t, gw, "alpha")
	beta := fx.seedBoard(t, gw, "beta")
	inScope := fx.seedAgent(t, alpha, "in scope", "agent:in", "", 0)
	fx.seedAgent(t, beta, "out of scope", "agent:out", "", 0)
	fx.installGateway(map[string]string{"in": "oc_tok", "out": "oc_tok"}, nil)

	result := fx.syncer.Sync(context.Background(), gw, Options{BoardID: alpha.ID})

	assert.Equal(t, 1, result.AgentsUpdated)
	assert.Empty(t, result.Errors)
	require.Len(t, fx.prov.calls, 1)
	assert.Equal(t, inScope.ID, fx.prov.calls[0].agentID)
}

func TestSync_MissingTokenRotationDisabled(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	board := fx.seedBoard(t, gw, "alpha")
	agent := fx.seedAgent(t, board, "worker", "agent:w1", "", 0)
	fx.installGateway(map[string]string{}, nil)

	result := fx.syncer.Sync(context.Background(), gw, Options{RotateTokens: false})

	assert.Equal(t, 0, result.AgentsUpdated)
	assert.Equal(t, 1, result.AgentsSkipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, agent.ID, result.Errors[0].AgentID)
	assert.Contains(t, result.Errors[0].Message, "AUTH_TOKEN")
	assert.Empty(t, fx.prov.calls)
}

func TestSync_MissingTokenRotationEnabled(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	board := fx.seedBoard(t, gw, "alpha")
	agent := fx.seedAgent(t, board, "worker", "agent:w1", "", 0)
	fx.installGateway(map[string]string{}, nil)

	result := fx.syncer.Sync(context.Background(), gw, Options{RotateTokens: true})

	assert.Equal(t, 1, result.AgentsUpdated)
	assert.Equal(t, 0, result.AgentsSkipped)
	assert.Empty(t, result.Errors)

	// A fresh hash was committed and provisioning got the matching plaintext
	stored, err := fx.store.GetAgent(context.Background(), agent.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.TokenHash)
	require.Len(t, fx.prov.calls, 1)
	call := fx.prov.calls[0]
	assert.True(t, tokens.Verify(call.token, stored.TokenHash))
	assert.Equal(t, "update", call.opts.Action)
}

func TestSync_TokenDriftWarnsButProceeds(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	board := fx.seedBoard(t, gw, "alpha")
	hash, err := tokens.Hash("oc_expected")
	require.NoError(t, err)
	agent := fx.seedAgent(t, board, "worker", "agent:w1", hash, 0)
	fx.installGateway(map[string]string{"w1": "oc_drifted"}, nil)

	result := fx.syncer.Sync(context.Background(), gw, Options{})

	assert.Equal(t, 1, result.AgentsUpdated)
	assert.Equal(t, 0, result.AgentsSkipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, agent.ID, result.Errors[0].AgentID)
	assert.Contains(t, result.Errors[0].Message, "does not match")

	require.Len(t, fx.prov.calls, 1)
	assert.Equal(t, "oc_drifted", fx.prov.calls[0].token, "remote token used unchanged")
}

func TestSync_ProvisionPermanentFailureContinuesLoop(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	board := fx.seedBoard(t, gw, "alpha")
	failing := fx.seedAgent(t, board, "failing", "agent:bad", "", 2*time.Hour)
	fx.seedAgent(t, board, "healthy", "agent:good", "", time.Hour)
	fx.installGateway(map[string]string{"bad": "oc_tok", "good": "oc_tok"}, nil)
	fx.prov.failures[failing.ID] = []error{
		&openclaw.GatewayError{Method: "agents.update", Message: "invalid configuration"},
	}

	result := fx.syncer.Sync(context.Background(), gw, Options{})

	assert.Equal(t, 1, result.AgentsUpdated)
	assert.Equal(t, 1, result.AgentsSkipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, failing.ID, result.Errors[0].AgentID)
	assert.Contains(t, result.Errors[0].Message, "Failed to sync agent configuration")
	// Permanent failure: exactly one attempt, then the loop moved on
	assert.Len(t, fx.prov.calls, 2)
}

func TestSync_ProvisionTransientRetries(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	board := fx.seedBoard(t, gw, "alpha")
	flaky := fx.seedAgent(t, board, "flaky", "agent:flaky", "", 0)
	fx.installGateway(map[string]string{"flaky": "oc_tok"}, nil)
	fx.prov.failures[flaky.ID] = []error{
		&openclaw.GatewayError{Method: "agents.update", Message: "request timed out"},
		&openclaw.GatewayError{Method: "agents.update", Message: "HTTP 503 Service Unavailable"},
	}

	result := fx.syncer.Sync(context.Background(), gw, Options{})

	assert.Equal(t, 1, result.AgentsUpdated)
	assert.Empty(t, result.Errors)
	assert.Len(t, fx.prov.calls, 3, "two transient failures then success")
}

// extraAgentStore injects an agent whose board is outside the loaded
// scope, which the per-agent loop must skip rather than crash on.
type extraAgentStore struct {
	*store.MockStore
	extra *store.Agent
}

func (s *extraAgentStore) ListAgentsByBoards(ctx context.Context, boardIDs []string) ([]*store.Agent, error) {
	agents, err := s.MockStore.ListAgentsByBoards(ctx, boardIDs)
	if err != nil {
		return nil, err
	}
	return append(agents, s.extra), nil
}

func TestSync_AgentWithUnknownBoardSkipped(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	fx.seedBoard(t, gw, "alpha")
	foreignBoard := "foreign-board"
	stray := &store.Agent{ID: "stray", BoardID: &foreignBoard, Name: "stray"}

	fx.syncer.store = &extraAgentStore{MockStore: fx.store, extra: stray}
	fx.installGateway(map[string]string{}, nil)

	result := fx.syncer.Sync(context.Background(), gw, Options{})

	assert.Equal(t, 1, result.AgentsSkipped)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "stray", result.Errors[0].AgentID)
	assert.Equal(t, foreignBoard, result.Errors[0].BoardID)
	assert.Contains(t, result.Errors[0].Message, "board not found")
	assert.Empty(t, fx.prov.calls)
}

func TestSync_MainAgentRecordMissing(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	board := fx.seedBoard(t, gw, "alpha")
	fx.seedAgent(t, board, "worker", "agent:w1", "", 0)
	fx.installGateway(map[string]string{"w1": "oc_tok"}, nil)

	result := fx.syncer.Sync(context.Background(), gw, Options{IncludeMain: true})

	// Per-agent results are preserved; the main phase records its error
	assert.Equal(t, 1, result.AgentsUpdated)
	assert.False(t, result.MainUpdated)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "main agent record not found")
}

func TestSync_MainAgentUpdated(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	board := fx.seedBoard(t, gw, "alpha")
	main := fx.seedAgent(t, board, "main agent", "agent:main:prod", "", 0)
	fx.installGateway(
		map[string]string{"main": "oc_board", "main-gw-id": "oc_main"},
		map[string]any{"defaultId": "main-gw-id"},
	)

	result := fx.syncer.Sync(context.Background(), gw, Options{IncludeMain: true, ResetSessions: true})

	assert.True(t, result.MainUpdated)
	assert.True(t, result.ResetSessions)
	assert.Equal(t, 1, result.AgentsUpdated, "main agent also synced by the per-agent loop")
	assert.Empty(t, result.Errors)

	// The main agent was also provisioned by the per-agent loop; the
	// last call is the main-agent variant.
	require.NotEmpty(t, fx.prov.calls)
	last := fx.prov.calls[len(fx.prov.calls)-1]
	assert.True(t, last.main)
	assert.Equal(t, main.ID, last.agentID)
	assert.Equal(t, "oc_main", last.token)
	assert.True(t, last.opts.ResetSession)
}

func TestSync_MainAgentIdentityUnresolvable(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	gw.MainSessionKey = "not-a-session-key"
	require.NoError(t, fx.store.CreateGateway(context.Background(), gw))
	main := &store.Agent{Name: "main agent", SessionKey: "not-a-session-key"}
	require.NoError(t, fx.store.CreateAgent(context.Background(), main))
	fx.installGateway(map[string]string{}, nil) // agents.list fails non-retryably

	result := fx.syncer.Sync(context.Background(), gw, Options{IncludeMain: true})

	assert.False(t, result.MainUpdated)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, main.ID, result.Errors[0].AgentID)
	assert.Contains(t, result.Errors[0].Message, "Unable to resolve gateway default agent id")
	assert.Empty(t, fx.prov.calls)
}

func TestSync_MainAgentMissingTokenSkips(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	main := &store.Agent{Name: "main agent", SessionKey: "agent:main:prod"}
	require.NoError(t, fx.store.CreateAgent(context.Background(), main))
	fx.installGateway(map[string]string{}, map[string]any{"defaultId": "main-gw-id"})

	result := fx.syncer.Sync(context.Background(), gw, Options{IncludeMain: true})

	assert.False(t, result.MainUpdated)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "Skipping main agent")
	assert.Empty(t, fx.prov.calls)
}

func TestSync_MainAgentRotation(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	main := &store.Agent{Name: "main agent", SessionKey: "agent:main:prod"}
	require.NoError(t, fx.store.CreateAgent(context.Background(), main))
	fx.installGateway(map[string]string{}, map[string]any{"defaultId": "main-gw-id"})

	result := fx.syncer.Sync(context.Background(), gw, Options{IncludeMain: true, RotateTokens: true})

	assert.True(t, result.MainUpdated)
	assert.Empty(t, result.Errors)

	stored, err := fx.store.GetAgent(context.Background(), main.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.TokenHash)
	require.Len(t, fx.prov.calls, 1)
	assert.True(t, fx.prov.calls[0].main)
	assert.True(t, tokens.Verify(fx.prov.calls[0].token, stored.TokenHash))
}

func TestSync_ProcessesAgentsInCreationOrder(t *testing.T) {
	fx := newFixture(t)
	gw := fx.seedGateway(t)
	board := fx.seedBoard(t, gw, "alpha")
	oldest := fx.seedAgent(t, board, "oldest", "agent:a1", "", 3*time.Hour)
	middle := fx.seedAgent(t, board, "middle", "agent:a2", "", 2*time.Hour)
	newest := fx.seedAgent(t, board, "newest", "agent:a3", "", time.Hour)
	fx.installGateway(map[string]string{"a1": "t", "a2": "t", "a3": "t"}, nil)

	result := fx.syncer.Sync(context.Background(), gw, Options{})

	assert.Equal(t, 3, result.AgentsUpdated)
	require.Len(t, fx.prov.calls, 3)
	assert.Equal(t, oldest.ID, fx.prov.calls[0].agentID)
	assert.Equal(t, middle.ID, fx.prov.calls[1].agentID)
	assert.Equal(t, newest.ID, fx.prov.calls[2].agentID)
}
