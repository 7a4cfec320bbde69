// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	gateways map[string]*Gateway // keyed by gateway ID
	boards   map[string]*Board   // keyed by board ID
	agents   map[string]*Agent   // keyed by agent ID
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		gateways: make(map[string]*Gateway),
		boards:   make(map[string]*Board),
		agents:   make(map[string]*Agent),
	}
}

// CreateGateway stores a new gateway.
func (m *MockStore) CreateGateway(ctx context.Context, gw *Gateway) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fillIdentity(&gw.ID, &gw.CreatedAt, &gw.UpdatedAt)
	// Make a copy to avoid external modification
	g := *gw
	m.gateways[g.ID] = &g
	return nil
}

// GetGateway retrieves a gateway by ID.
func (m *MockStore) GetGateway(ctx context.Context, id string) (*Gateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	gw, ok := m.gateways[id]
	if !ok {
		return nil, ErrNotFound
	}
	g := *gw
	return &g, nil
}

// GetGatewayByName retrieves a gateway by name.
func (m *MockStore) GetGatewayByName(ctx context.Context, name string) (*Gateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, gw := range m.gateways {
		if gw.Name == name {
			g := *gw
			return &g, nil
		}
	}
	return nil, ErrNotFound
}

// ListGateways returns all gateways ordered by name.
func (m *MockStore) ListGateways(ctx context.Context) ([]*Gateway, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var gateways []*Gateway
	for _, gw := range m.gateways {
		g := *gw
		gateways = append(gateways, &g)
	}
	sort.Slice(gateways, func(i, j int) bool { return gateways[i].Name < gateways[j].Name })
	return gateways, nil
}

// CreateBoard stores a new board.
func (m *MockStore) CreateBoard(ctx context.Context, board *Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fillIdentity(&board.ID, &board.CreatedAt, &board.UpdatedAt)
	b := *board
	m.boards[b.ID] = &b
	return nil
}

// ListBoards returns all boards for a gateway ordered by creation time.
func (m *MockStore) ListBoards(ctx context.Context, gatewayID string) ([]*Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var boards []*Board
	for _, board := range m.boards {
		if board.GatewayID == gatewayID {
			b := *board
			boards = append(boards, &b)
		}
	}
	sort.Slice(boards, func(i, j int) bool { return boards[i].CreatedAt.Before(boards[j].CreatedAt) })
	return boards, nil
}

// CreateAgent stores a new agent.
func (m *MockStore) CreateAgent(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fillIdentity(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)
	a := *agent
	m.agents[a.ID] = &a
	return nil
}

// GetAgent retrieves an agent by ID.
func (m *MockStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	a := *agent
	return &a, nil
}

// GetAgentBySessionKey retrieves the oldest agent with the given session key.
func (m *MockStore) GetAgentBySessionKey(ctx context.Context, sessionKey string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var match *Agent
	for _, agent := range m.agents {
		if agent.SessionKey != sessionKey {
			continue
		}
		if match == nil || agent.CreatedAt.Before(match.CreatedAt) {
			match = agent
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	a := *match
	return &a, nil
}

// ListAgentsByBoards returns agents on the given boards ordered by creation time.
func (m *MockStore) ListAgentsByBoards(ctx context.Context, boardIDs []string) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inScope := make(map[string]bool, len(boardIDs))
	for _, id := range boardIDs {
		inScope[id] = true
	}

	var agents []*Agent
	for _, agent := range m.agents {
		if agent.BoardID != nil && inScope[*agent.BoardID] {
			a := *agent
			agents = append(agents, &a)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].CreatedAt.Before(agents[j].CreatedAt) })
	return agents, nil
}

// UpdateAgentTokenHash writes a new token hash and returns the updated row.
func (m *MockStore) UpdateAgentTokenHash(ctx context.Context, agentID, tokenHash string) (*Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	agent.TokenHash = tokenHash
	agent.UpdatedAt = time.Now().UTC()
	a := *agent
	return &a, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)
