// ABOUTME: Token reconciliation between the local hash and the gateway-read token
// ABOUTME: Decides skip, accept, drift-warn, or rotate; rotations commit before use

package sync

import (
	"context"
	"fmt"

	"github.com/2389/openclaw-sync/internal/store"
	"github.com/2389/openclaw-sync/internal/tokens"
)

// tokenReconciliation is the outcome of reconciling one agent's token.
type tokenReconciliation struct {
	token   string // plaintext to provision with; empty when skip is set
	skip    bool   // no gateway token and rotation disabled
	rotated bool   // a fresh token was generated and its hash committed
	drift   bool   // gateway token disagrees with the stored hash (rotation disabled)
}

// reconcileToken applies the token decision table. remoteToken is the
// AUTH_TOKEN read back from the gateway, "" when absent. The agent row
// is refreshed in place when a rotation commits a new hash. An error is
// returned only for local failures (randomness, hashing, the durable
// write); gateway disagreement never errors.
func (s *Syncer) reconcileToken(ctx context.Context, agent *store.Agent, remoteToken string, rotate bool) (tokenReconciliation, error) {
	var rec tokenReconciliation
	token := remoteToken

	if token == "" {
		if !rotate {
			rec.skip = true
			return rec, nil
		}
		raw, err := s.rotateAgentToken(ctx, agent)
		if err != nil {
			return rec, err
		}
		token = raw
		rec.rotated = true
	}

	if agent.TokenHash != "" && !tokens.Verify(token, agent.TokenHash) {
		// Sync is never blocked by drift; optionally re-key.
		if rotate {
			raw, err := s.rotateAgentToken(ctx, agent)
			if err != nil {
				return rec, err
			}
			token = raw
			rec.rotated = true
		} else {
			rec.drift = true
		}
	}

	rec.token = token
	return rec, nil
}

// rotateAgentToken generates a fresh token and durably commits its hash
// before returning the plaintext. The write happens before any remote
// call relies on the new token; a later provisioning failure leaves the
// hash in place and the next pass rewrites the gateway file to match.
func (s *Syncer) rotateAgentToken(ctx context.Context, agent *store.Agent) (string, error) {
	raw, err := tokens.Generate()
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	hash, err := tokens.Hash(raw)
	if err != nil {
		return "", fmt.Errorf("hashing token: %w", err)
	}
	updated, err := s.store.UpdateAgentTokenHash(ctx, agent.ID, hash)
	if err != nil {
		return "", fmt.Errorf("storing token hash: %w", err)
	}
	*agent = *updated

	s.logger.Info("rotated agent token", "agent_id", agent.ID, "agent_name", agent.Name)
	return raw, nil
}
