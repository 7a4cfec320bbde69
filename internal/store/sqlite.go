// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides gateway/board/agent persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS gateways (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL UNIQUE,
			url              TEXT NOT NULL,
			token            TEXT NOT NULL DEFAULT '',
			main_session_key TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS boards (
			id         TEXT PRIMARY KEY,
			gateway_id TEXT NOT NULL,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (gateway_id) REFERENCES gateways(id)
		);

		CREATE INDEX IF NOT EXISTS idx_boards_gateway_id
			ON boards(gateway_id);

		CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			board_id    TEXT,
			name        TEXT NOT NULL,
			session_key TEXT NOT NULL DEFAULT '',
			token_hash  TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			FOREIGN KEY (board_id) REFERENCES boards(id)
		);

		CREATE INDEX IF NOT EXISTS idx_agents_board_id
			ON agents(board_id);

		CREATE INDEX IF NOT EXISTS idx_agents_session_key
			ON agents(session_key);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateGateway inserts a new gateway row. A missing ID is generated,
// missing timestamps default to now.
func (s *SQLiteStore) CreateGateway(ctx context.Context, gw *Gateway) error {
	fillIdentity(&gw.ID, &gw.CreatedAt, &gw.UpdatedAt)

	query := `
		INSERT INTO gateways (id, name, url, token, main_session_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		gw.ID,
		gw.Name,
		gw.URL,
		gw.Token,
		gw.MainSessionKey,
		gw.CreatedAt.Format(time.RFC3339Nano),
		gw.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting gateway: %w", err)
	}

	s.logger.Debug("created gateway", "id", gw.ID, "name", gw.Name)
	return nil
}

// GetGateway retrieves a gateway by ID.
// Returns ErrNotFound if the gateway doesn't exist.
func (s *SQLiteStore) GetGateway(ctx context.Context, id string) (*Gateway, error) {
	return s.getGateway(ctx, "id = ?", id)
}

// GetGatewayByName retrieves a gateway by its unique name.
// Returns ErrNotFound if the gateway doesn't exist.
func (s *SQLiteStore) GetGatewayByName(ctx context.Context, name string) (*Gateway, error) {
	return s.getGateway(ctx, "name = ?", name)
}

func (s *SQLiteStore) getGateway(ctx context.Context, where string, arg any) (*Gateway, error) {
	query := `
		SELECT id, name, url, token, main_session_key, created_at, updated_at
		FROM gateways
		WHERE ` + where

	var gw Gateway
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&gw.ID,
		&gw.Name,
		&gw.URL,
		&gw.Token,
		&gw.MainSessionKey,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying gateway: %w", err)
	}

	gw.CreatedAt = parseStoredTime(createdAt, "gateway created_at", gw.ID)
	gw.UpdatedAt = parseStoredTime(updatedAt, "gateway updated_at", gw.ID)
	return &gw, nil
}

// ListGateways returns all gateways ordered by name.
func (s *SQLiteStore) ListGateways(ctx context.Context) ([]*Gateway, error) {
	query := `
		SELECT id, name, url, token, main_session_key, created_at, updated_at
		FROM gateways
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying gateways: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var gateways []*Gateway
	for rows.Next() {
		var gw Gateway
		var createdAt, updatedAt string
		if err := rows.Scan(
			&gw.ID,
			&gw.Name,
			&gw.URL,
			&gw.Token,
			&gw.MainSessionKey,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning gateway row: %w", err)
		}
		gw.CreatedAt = parseStoredTime(createdAt, "gateway created_at", gw.ID)
		gw.UpdatedAt = parseStoredTime(updatedAt, "gateway updated_at", gw.ID)
		gateways = append(gateways, &gw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gateway rows: %w", err)
	}

	return gateways, nil
}

// CreateBoard inserts a new board row.
func (s *SQLiteStore) CreateBoard(ctx context.Context, board *Board) error {
	fillIdentity(&board.ID, &board.CreatedAt, &board.UpdatedAt)

	query := `
		INSERT INTO boards (id, gateway_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		board.ID,
		board.GatewayID,
		board.Name,
		board.CreatedAt.Format(time.RFC3339Nano),
		board.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting board: %w", err)
	}

	s.logger.Debug("created board", "id", board.ID, "gateway_id", board.GatewayID)
	return nil
}

// ListBoards returns all boards for a gateway ordered by creation time.
func (s *SQLiteStore) ListBoards(ctx context.Context, gatewayID string) ([]*Board, error) {
	query := `
		SELECT id, gateway_id, name, created_at, updated_at
		FROM boards
		WHERE gateway_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, gatewayID)
	if err != nil {
		return nil, fmt.Errorf("querying boards: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var boards []*Board
	for rows.Next() {
		var board Board
		var createdAt, updatedAt string
		if err := rows.Scan(
			&board.ID,
			&board.GatewayID,
			&board.Name,
			&createdAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning board row: %w", err)
		}
		board.CreatedAt = parseStoredTime(createdAt, "board created_at", board.ID)
		board.UpdatedAt = parseStoredTime(updatedAt, "board updated_at", board.ID)
		boards = append(boards, &board)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating board rows: %w", err)
	}

	return boards, nil
}

// CreateAgent inserts a new agent row.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	fillIdentity(&agent.ID, &agent.CreatedAt, &agent.UpdatedAt)

	query := `
		INSERT INTO agents (id, board_id, name, session_key, token_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	var boardID sql.NullString
	if agent.BoardID != nil {
		boardID = sql.NullString{String: *agent.BoardID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, query,
		agent.ID,
		boardID,
		agent.Name,
		agent.SessionKey,
		agent.TokenHash,
		agent.CreatedAt.Format(time.RFC3339Nano),
		agent.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}

	s.logger.Debug("created agent", "id", agent.ID, "name", agent.Name)
	return nil
}

const agentColumns = `id, board_id, name, session_key, token_hash, created_at, updated_at`

// GetAgent retrieves an agent by ID.
// Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = ?`
	return s.queryAgentRow(ctx, query, id)
}

// GetAgentBySessionKey retrieves the oldest agent with the given session
// key. Returns ErrNotFound if no agent matches.
func (s *SQLiteStore) GetAgentBySessionKey(ctx context.Context, sessionKey string) (*Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE session_key = ? ORDER BY created_at ASC LIMIT 1`
	return s.queryAgentRow(ctx, query, sessionKey)
}

func (s *SQLiteStore) queryAgentRow(ctx context.Context, query string, args ...any) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	agent, err := scanAgent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return agent, nil
}

// ListAgentsByBoards returns all agents belonging to the given boards,
// ordered by creation time ascending for deterministic processing.
func (s *SQLiteStore) ListAgentsByBoards(ctx context.Context, boardIDs []string) ([]*Agent, error) {
	if len(boardIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]byte, 0, len(boardIDs)*2-1)
	args := make([]any, 0, len(boardIDs))
	for i, id := range boardIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}

	query := `SELECT ` + agentColumns + ` FROM agents WHERE board_id IN (` +
		string(placeholders) + `) ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}

	return agents, nil
}

// UpdateAgentTokenHash durably writes a new token hash and bumps
// UpdatedAt, then re-reads the row so the caller sees exactly what was
// committed. Returns ErrNotFound if the agent doesn't exist.
func (s *SQLiteStore) UpdateAgentTokenHash(ctx context.Context, agentID, tokenHash string) (*Agent, error) {
	query := `
		UPDATE agents
		SET token_hash = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		tokenHash,
		time.Now().UTC().Format(time.RFC3339Nano),
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating agent token hash: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrNotFound
	}

	s.logger.Debug("updated agent token hash", "agent_id", agentID)
	return s.GetAgent(ctx, agentID)
}

func scanAgent(scan func(...any) error) (*Agent, error) {
	var agent Agent
	var boardID sql.NullString
	var createdAt, updatedAt string

	if err := scan(
		&agent.ID,
		&boardID,
		&agent.Name,
		&agent.SessionKey,
		&agent.TokenHash,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if boardID.Valid {
		agent.BoardID = &boardID.String
	}
	agent.CreatedAt = parseStoredTime(createdAt, "agent created_at", agent.ID)
	agent.UpdatedAt = parseStoredTime(updatedAt, "agent updated_at", agent.ID)
	return &agent, nil
}

// fillIdentity assigns a fresh UUID and timestamps to a new row when the
// caller left them zero.
func fillIdentity(id *string, createdAt, updatedAt *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	now := time.Now().UTC()
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = now
	}
}

func parseStoredTime(value, field, id string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		slog.Warn("failed to parse stored timestamp", "field", field, "id", id, "error", err)
		return time.Time{}
	}
	return parsed
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
