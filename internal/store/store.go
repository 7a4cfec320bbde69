// ABOUTME: Store interface and data types for openclaw-sync persistence
// ABOUTME: Defines Gateway, Board, Agent structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Gateway represents a remote OpenClaw endpoint hosting agent runtime
// configuration. Rows are read-only during a sync pass.
type Gateway struct {
	ID             string
	Name           string
	URL            string
	Token          string // bearer credential; empty when connect tokens are minted
	MainSessionKey string // session key of the gateway's distinguished default agent
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Board is a named grouping of agents under exactly one gateway.
type Board struct {
	ID        string
	GatewayID string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Agent is a locally stored agent record mirrored onto a gateway.
// SessionKey encodes the remote identifier as "agent:<remote-id>[:...]".
// TokenHash holds a bcrypt hash of the agent's auth token, empty if one
// was never issued. Sync mutates only TokenHash and UpdatedAt.
type Agent struct {
	ID         string
	BoardID    *string // nil = not assigned to a board
	Name       string
	SessionKey string
	TokenHash  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store defines the interface for gateway/board/agent persistence
type Store interface {
	// Gateways
	CreateGateway(ctx context.Context, gw *Gateway) error
	GetGateway(ctx context.Context, id string) (*Gateway, error)
	GetGatewayByName(ctx context.Context, name string) (*Gateway, error)
	ListGateways(ctx context.Context) ([]*Gateway, error)

	// Boards
	CreateBoard(ctx context.Context, board *Board) error
	ListBoards(ctx context.Context, gatewayID string) ([]*Board, error)

	// Agents
	CreateAgent(ctx context.Context, agent *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	GetAgentBySessionKey(ctx context.Context, sessionKey string) (*Agent, error)
	ListAgentsByBoards(ctx context.Context, boardIDs []string) ([]*Agent, error)

	// UpdateAgentTokenHash durably writes a new token hash (bumping
	// UpdatedAt), then re-reads and returns the stored row.
	UpdateAgentTokenHash(ctx context.Context, agentID, tokenHash string) (*Agent, error)

	// Close releases any resources held by the store
	Close() error
}
