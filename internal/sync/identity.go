// ABOUTME: Gateway-side agent identifier resolution
// ABOUTME: Session-key parsing, name slugs, and default-agent discovery over agents.list

package sync

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/openclaw-sync/internal/openclaw"
	"github.com/2389/openclaw-sync/internal/store"
)

// Default-agent discovery tuning. Gateways may reject websocket connects
// transiently under load, so agents.list gets a short retry loop of its
// own with a narrower transient set than the general classifier.
const (
	discoveryAttempts  = 3
	discoveryBaseDelay = 500 * time.Millisecond
)

const sessionKeyPrefix = "agent:"

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases the value, collapses every run of non-alphanumeric
// characters to a single hyphen, and trims hyphens. An empty result is
// replaced by a random token so the identifier is never blank.
func slugify(value string) string {
	slug := nonAlnumRun.ReplaceAllString(strings.ToLower(value), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	return slug
}

// GatewayAgentID derives the gateway-side identifier for an agent: the
// second colon-delimited segment of an "agent:<id>[:...]" session key,
// falling back to a slug of the agent's display name.
func GatewayAgentID(agent *store.Agent) string {
	if strings.HasPrefix(agent.SessionKey, sessionKeyPrefix) {
		parts := strings.Split(agent.SessionKey, ":")
		if len(parts) >= 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return slugify(agent.Name)
}

// agentIDFromSessionKey parses an "agent:<id>[:...]" session key and
// returns the id, or "" when the key doesn't match.
func agentIDFromSessionKey(sessionKey string) string {
	value := strings.TrimSpace(sessionKey)
	if value == "" || !strings.HasPrefix(value, sessionKeyPrefix) {
		return ""
	}
	parts := strings.Split(value, ":")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// extractAgentID pulls an agent identifier out of an untyped agents.list
// payload. The enumerated shapes are tried in order; anything else
// yields "" rather than a guess.
func extractAgentID(payload any) string {
	fromList := func(items any) string {
		list, ok := items.([]any)
		if !ok {
			return ""
		}
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, key := range []string{"id", "agentId", "agent_id"} {
				if s, ok := entry[key].(string); ok && strings.TrimSpace(s) != "" {
					return strings.TrimSpace(s)
				}
			}
		}
		return ""
	}

	if _, ok := payload.([]any); ok {
		return fromList(payload)
	}
	mapping, ok := payload.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"defaultId", "default_id", "defaultAgentId", "default_agent_id"} {
		if s, ok := mapping[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	for _, key := range []string{"agents", "items", "list", "data"} {
		if id := fromList(mapping[key]); id != "" {
			return id
		}
	}
	return ""
}

// isDiscoveryRetryable is the narrower transient set used only by
// default-agent discovery.
func isDiscoveryRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "503") ||
		strings.Contains(msg, "temporar") ||
		strings.Contains(msg, "rejected") ||
		strings.Contains(msg, "timeout")
}

// defaultAgentID discovers the gateway's default agent id via
// agents.list, retrying a few times on rejected/overloaded connects.
// When discovery yields nothing it falls back to parsing the given
// session key; "" means the caller must treat resolution as failed.
func (s *Syncer) defaultAgentID(ctx context.Context, cfg openclaw.Config, fallbackSessionKey string) string {
	for attempt := 0; attempt < discoveryAttempts; attempt++ {
		payload, err := s.caller.Call(ctx, cfg, "agents.list", nil)
		if err == nil {
			if id := extractAgentID(payload); id != "" {
				return id
			}
			break
		}
		if !isDiscoveryRetryable(err) {
			s.logger.Debug("default agent discovery failed", "error", err)
			break
		}
		if attempt < discoveryAttempts-1 {
			if s.sleep(ctx, discoveryBaseDelay<<attempt) != nil {
				break
			}
		}
	}
	return agentIDFromSessionKey(fallbackSessionKey)
}
