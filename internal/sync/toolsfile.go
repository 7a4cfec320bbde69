// ABOUTME: Fetches and parses the TOOLS.md pseudo-file from a gateway agent
// ABOUTME: Recovers the existing AUTH_TOKEN without ever propagating remote failures

package sync

import (
	"context"
	"regexp"
	"strings"

	"github.com/2389/openclaw-sync/internal/openclaw"
)

// ToolsFileName is the gateway pseudo-file holding an agent's KEY=value
// configuration lines.
const ToolsFileName = "TOOLS.md"

// AuthTokenKey is the TOOLS.md key carrying the agent's auth token.
const AuthTokenKey = "AUTH_TOKEN"

var toolsKVLine = regexp.MustCompile(`^([A-Z0-9_]+)=(.*)$`)

// agentFile fetches a named pseudo-file for a gateway agent. Remote
// failures and unrecognized payload shapes both report "not found".
func (s *Syncer) agentFile(ctx context.Context, cfg openclaw.Config, agentGatewayID, name string) (string, bool) {
	payload, err := s.caller.Call(ctx, cfg, "agents.files.get", map[string]any{
		"agentId": agentGatewayID,
		"name":    name,
	})
	if err != nil {
		s.logger.Debug("agent file fetch failed", "agent_gateway_id", agentGatewayID, "name", name, "error", err)
		return "", false
	}

	// Known shapes: bare string, {"content": "..."}, {"file": {"content": "..."}}
	if content, ok := payload.(string); ok {
		return content, true
	}
	mapping, ok := payload.(map[string]any)
	if !ok {
		return "", false
	}
	if content, ok := mapping["content"].(string); ok {
		return content, true
	}
	if file, ok := mapping["file"].(map[string]any); ok {
		if content, ok := file["content"].(string); ok {
			return content, true
		}
	}
	return "", false
}

// parseToolsFile extracts KEY=value pairs from TOOLS.md content. Blank
// lines, #-comments, and lines that don't match the key grammar are
// ignored.
func parseToolsFile(content string) map[string]string {
	values := make(map[string]string)
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		match := toolsKVLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		values[match[1]] = strings.TrimSpace(match[2])
	}
	return values
}

// existingAuthToken reads the AUTH_TOKEN currently stored on the gateway
// for the given agent, or "" when the file or key is absent.
func (s *Syncer) existingAuthToken(ctx context.Context, cfg openclaw.Config, agentGatewayID string) string {
	content, ok := s.agentFile(ctx, cfg, agentGatewayID, ToolsFileName)
	if !ok || content == "" {
		return ""
	}
	return strings.TrimSpace(parseToolsFile(content)[AuthTokenKey])
}
