// ABOUTME: Pushes agent configuration and auth tokens to an OpenClaw gateway
// ABOUTME: Implements the sync.Provisioner contract; idempotent under action "update"

package provision

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/openclaw-sync/internal/openclaw"
	"github.com/2389/openclaw-sync/internal/store"
	"github.com/2389/openclaw-sync/internal/sync"
)

// Service provisions agents over the gateway RPC protocol. It rewrites
// the agent's TOOLS.md so the gateway-side token always matches the
// plaintext the sync pass decided on, then applies the configuration
// update.
type Service struct {
	caller openclaw.Caller
	logger *slog.Logger
}

// NewService creates a provisioning service on the given caller.
func NewService(caller openclaw.Caller) *Service {
	return &Service{
		caller: caller,
		logger: slog.Default().With("component", "provision"),
	}
}

// Provision pushes one agent's configuration to the gateway.
func (s *Service) Provision(ctx context.Context, agent *store.Agent, board *store.Board, gw *store.Gateway, token string, opts sync.ProvisionOptions) error {
	agentGatewayID := sync.GatewayAgentID(agent)
	if err := s.writeToolsFile(ctx, gw, agentGatewayID, token); err != nil {
		return err
	}

	params := map[string]any{
		"agentId":        agentGatewayID,
		"name":           agent.Name,
		"board":          board.Name,
		"action":         opts.Action,
		"forceBootstrap": opts.ForceBootstrap,
		"resetSession":   opts.ResetSession,
	}
	if opts.User != "" {
		params["requestedBy"] = opts.User
	}
	if _, err := s.caller.Call(ctx, clientConfig(gw), "agents.update", params); err != nil {
		return err
	}

	s.logger.Info("provisioned agent", "agent_id", agent.ID, "agent_gateway_id", agentGatewayID, "board", board.Name)
	return nil
}

// ProvisionMain pushes the gateway's default agent configuration. The
// main agent has no board; the gateway resolves it by its default id.
func (s *Service) ProvisionMain(ctx context.Context, agent *store.Agent, gw *store.Gateway, token string, opts sync.ProvisionOptions) error {
	agentGatewayID := sync.GatewayAgentID(agent)
	if err := s.writeToolsFile(ctx, gw, agentGatewayID, token); err != nil {
		return err
	}

	params := map[string]any{
		"agentId":        agentGatewayID,
		"name":           agent.Name,
		"main":           true,
		"action":         opts.Action,
		"forceBootstrap": opts.ForceBootstrap,
		"resetSession":   opts.ResetSession,
	}
	if opts.User != "" {
		params["requestedBy"] = opts.User
	}
	if _, err := s.caller.Call(ctx, clientConfig(gw), "agents.update", params); err != nil {
		return err
	}

	s.logger.Info("provisioned main agent", "agent_id", agent.ID, "agent_gateway_id", agentGatewayID)
	return nil
}

func (s *Service) writeToolsFile(ctx context.Context, gw *store.Gateway, agentGatewayID, token string) error {
	content := fmt.Sprintf("%s=%s\n", sync.AuthTokenKey, token)
	_, err := s.caller.Call(ctx, clientConfig(gw), "agents.files.set", map[string]any{
		"agentId": agentGatewayID,
		"name":    sync.ToolsFileName,
		"content": content,
	})
	return err
}

func clientConfig(gw *store.Gateway) openclaw.Config {
	return openclaw.Config{URL: gw.URL, Token: gw.Token}
}

// Ensure Service implements the provisioning contract.
var _ sync.Provisioner = (*Service)(nil)
