// ABOUTME: Sync orchestrator reconciling local agent records with an OpenClaw gateway
// ABOUTME: One bounded pass, one agent at a time, all expected failures folded into the Result

package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/openclaw-sync/internal/openclaw"
	"github.com/2389/openclaw-sync/internal/store"
)

// Provisioner is the external collaborator that pushes an agent's
// configuration and token to the gateway. Both operations are assumed
// idempotent under Action "update".
type Provisioner interface {
	Provision(ctx context.Context, agent *store.Agent, board *store.Board, gw *store.Gateway, token string, opts ProvisionOptions) error
	ProvisionMain(ctx context.Context, agent *store.Agent, gw *store.Gateway, token string, opts ProvisionOptions) error
}

// ProvisionOptions carries the per-call flags of the provisioning contract.
type ProvisionOptions struct {
	Action         string
	User           string
	ForceBootstrap bool
	ResetSession   bool
}

// Options selects the scope and behavior of one sync pass.
type Options struct {
	IncludeMain    bool
	ResetSessions  bool
	RotateTokens   bool
	ForceBootstrap bool
	BoardID        string // restrict the pass to one board when non-empty
	User           string // requesting user, passed through to provisioning
}

// Syncer drives sync passes. It holds no per-pass state; the caller must
// not run concurrent passes against the same gateway (token rotation
// would race).
type Syncer struct {
	store  store.Store
	caller openclaw.Caller
	prov   Provisioner
	retry  openclaw.RetryOptions
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

// New creates a Syncer. A zero RetryOptions selects the package defaults.
func New(st store.Store, caller openclaw.Caller, prov Provisioner, retry openclaw.RetryOptions) *Syncer {
	return &Syncer{
		store:  st,
		caller: caller,
		prov:   prov,
		retry:  retry,
		logger: slog.Default().With("component", "sync"),
		sleep:  sleepContext,
	}
}

// Sync runs one reconciliation pass for the gateway and returns the
// accumulated result. It never returns an error: every expected failure
// mode is recorded as a Result entry and the affected phase ends early
// while earlier results are preserved.
func (s *Syncer) Sync(ctx context.Context, gw *store.Gateway, opts Options) *Result {
	result := &Result{
		GatewayID:     gw.ID,
		IncludeMain:   opts.IncludeMain,
		ResetSessions: opts.ResetSessions,
		Errors:        []ErrorEntry{},
	}

	if gw.URL == "" {
		result.appendError(ErrorEntry{Message: "Gateway URL is not configured for this gateway."})
		return result
	}

	cfg := openclaw.Config{URL: gw.URL, Token: gw.Token}

	boards, err := s.store.ListBoards(ctx, gw.ID)
	if err != nil {
		result.appendError(ErrorEntry{Message: fmt.Sprintf("Failed to load boards: %v", err)})
		return result
	}
	boardsByID := make(map[string]*store.Board, len(boards))
	for _, board := range boards {
		boardsByID[board.ID] = board
	}

	if opts.BoardID != "" {
		board, ok := boardsByID[opts.BoardID]
		if !ok {
			result.appendError(ErrorEntry{
				BoardID: opts.BoardID,
				Message: "Board does not belong to this gateway.",
			})
			return result
		}
		boardsByID = map[string]*store.Board{opts.BoardID: board}
	}

	var agents []*store.Agent
	if len(boardsByID) > 0 {
		boardIDs := make([]string, 0, len(boardsByID))
		for id := range boardsByID {
			boardIDs = append(boardIDs, id)
		}
		agents, err = s.store.ListAgentsByBoards(ctx, boardIDs)
		if err != nil {
			result.appendError(ErrorEntry{Message: fmt.Sprintf("Failed to load agents: %v", err)})
			return result
		}
	}

	s.logger.Info("starting sync pass",
		"gateway_id", gw.ID,
		"agents", len(agents),
		"include_main", opts.IncludeMain,
		"rotate_tokens", opts.RotateTokens,
	)

	// Strictly sequential: provisioning mutates remote session state and
	// must not be parallelized.
	for _, agent := range agents {
		s.syncAgent(ctx, cfg, gw, agent, boardsByID, opts, result)
	}

	if opts.IncludeMain {
		s.syncMainAgent(ctx, cfg, gw, opts, result)
	}

	s.logger.Info("sync pass finished",
		"gateway_id", gw.ID,
		"updated", result.AgentsUpdated,
		"skipped", result.AgentsSkipped,
		"main_updated", result.MainUpdated,
		"errors", len(result.Errors),
	)
	return result
}

// syncAgent processes a single agent. Failures count the agent as
// skipped and never abort the loop.
func (s *Syncer) syncAgent(ctx context.Context, cfg openclaw.Config, gw *store.Gateway, agent *store.Agent, boardsByID map[string]*store.Board, opts Options, result *Result) {
	var board *store.Board
	if agent.BoardID != nil {
		board = boardsByID[*agent.BoardID]
	}
	if board == nil {
		result.AgentsSkipped++
		result.appendError(ErrorEntry{
			AgentID:   agent.ID,
			AgentName: agent.Name,
			BoardID:   derefString(agent.BoardID),
			Message:   "Skipping agent: board not found for agent.",
		})
		return
	}

	agentGatewayID := GatewayAgentID(agent)
	remoteToken := s.existingAuthToken(ctx, cfg, agentGatewayID)

	rec, err := s.reconcileToken(ctx, agent, remoteToken, opts.RotateTokens)
	if err != nil {
		result.AgentsSkipped++
		result.appendError(ErrorEntry{
			AgentID:   agent.ID,
			AgentName: agent.Name,
			BoardID:   board.ID,
			Message:   fmt.Sprintf("Failed to rotate agent token: %v", err),
		})
		return
	}
	if rec.skip {
		result.AgentsSkipped++
		result.appendError(ErrorEntry{
			AgentID:   agent.ID,
			AgentName: agent.Name,
			BoardID:   board.ID,
			Message:   "Skipping agent: unable to read AUTH_TOKEN from TOOLS.md (run with rotate_tokens=true to re-key).",
		})
		return
	}
	if rec.drift {
		result.appendError(ErrorEntry{
			AgentID:   agent.ID,
			AgentName: agent.Name,
			BoardID:   board.ID,
			Message:   "Warning: AUTH_TOKEN in TOOLS.md does not match stored token hash (agent auth may be broken).",
		})
	}

	err = openclaw.Do(ctx, s.retry, func() error {
		return s.prov.Provision(ctx, agent, board, gw, rec.token, ProvisionOptions{
			Action:         "update",
			User:           opts.User,
			ForceBootstrap: opts.ForceBootstrap,
			ResetSession:   opts.ResetSessions,
		})
	})
	if err != nil {
		result.AgentsSkipped++
		result.appendError(ErrorEntry{
			AgentID:   agent.ID,
			AgentName: agent.Name,
			BoardID:   board.ID,
			Message:   fmt.Sprintf("Failed to sync agent configuration: %v", err),
		})
		return
	}
	result.AgentsUpdated++
}

// syncMainAgent handles the gateway's distinguished default agent. Any
// failure records an error and ends the phase; per-agent results are
// kept.
func (s *Syncer) syncMainAgent(ctx context.Context, cfg openclaw.Config, gw *store.Gateway, opts Options, result *Result) {
	mainAgent, err := s.store.GetAgentBySessionKey(ctx, gw.MainSessionKey)
	if err != nil {
		result.appendError(ErrorEntry{
			Message: "Gateway main agent record not found; skipping main agent sync.",
		})
		return
	}

	mainGatewayID := s.defaultAgentID(ctx, cfg, gw.MainSessionKey)
	if mainGatewayID == "" {
		result.appendError(ErrorEntry{
			AgentID:   mainAgent.ID,
			AgentName: mainAgent.Name,
			Message:   "Unable to resolve gateway default agent id for main agent.",
		})
		return
	}

	remoteToken := s.existingAuthToken(ctx, cfg, mainGatewayID)
	rec, err := s.reconcileToken(ctx, mainAgent, remoteToken, opts.RotateTokens)
	if err != nil {
		result.appendError(ErrorEntry{
			AgentID:   mainAgent.ID,
			AgentName: mainAgent.Name,
			Message:   fmt.Sprintf("Failed to rotate main agent token: %v", err),
		})
		return
	}
	if rec.skip {
		result.appendError(ErrorEntry{
			AgentID:   mainAgent.ID,
			AgentName: mainAgent.Name,
			Message:   "Skipping main agent: unable to read AUTH_TOKEN from TOOLS.md.",
		})
		return
	}
	if rec.drift {
		result.appendError(ErrorEntry{
			AgentID:   mainAgent.ID,
			AgentName: mainAgent.Name,
			Message:   "Warning: AUTH_TOKEN in TOOLS.md does not match stored token hash (main agent auth may be broken).",
		})
	}

	err = openclaw.Do(ctx, s.retry, func() error {
		return s.prov.ProvisionMain(ctx, mainAgent, gw, rec.token, ProvisionOptions{
			Action:         "update",
			User:           opts.User,
			ForceBootstrap: opts.ForceBootstrap,
			ResetSession:   opts.ResetSessions,
		})
	})
	if err != nil {
		result.appendError(ErrorEntry{
			AgentID:   mainAgent.ID,
			AgentName: mainAgent.Name,
			Message:   fmt.Sprintf("Failed to sync main agent configuration: %v", err),
		})
		return
	}
	result.MainUpdated = true
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
