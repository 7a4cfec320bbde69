package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/openclaw-sync/internal/openclaw"
)

func TestParseToolsFile(t *testing.T) {
	content := "AUTH_TOKEN=xyz\n# comment\nFOO=bar\nmalformed"
	values := parseToolsFile(content)
	assert.Equal(t, map[string]string{"AUTH_TOKEN": "xyz", "FOO": "bar"}, values)
}

func TestParseToolsFile_EdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"blank lines ignored", "\n\nKEY=value\n\n", map[string]string{"KEY": "value"}},
		{"value whitespace trimmed", "KEY=  spaced value  ", map[string]string{"KEY": "spaced value"}},
		{"empty value kept", "KEY=", map[string]string{"KEY": ""}},
		{"lowercase key ignored", "key=value", map[string]string{}},
		{"comment ignored", "# KEY=value", map[string]string{}},
		{"underscores and digits", "AUTH_TOKEN_2=abc", map[string]string{"AUTH_TOKEN_2": "abc"}},
		{"value may contain equals", "KEY=a=b", map[string]string{"KEY": "a=b"}},
		{"last assignment wins", "KEY=one\nKEY=two", map[string]string{"KEY": "two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseToolsFile(tt.content))
		})
	}
}

func TestAgentFile_Shapes(t *testing.T) {
	tests := []struct {
		name     string
		payload  any
		want     string
		wantOK   bool
	}{
		{"bare string", "AUTH_TOKEN=abc", "AUTH_TOKEN=abc", true},
		{"content key", map[string]any{"name": "TOOLS.md", "content": "AUTH_TOKEN=abc"}, "AUTH_TOKEN=abc", true},
		{"nested file content", map[string]any{"file": map[string]any{"content": "AUTH_TOKEN=abc"}}, "AUTH_TOKEN=abc", true},
		{"unrecognized map", map[string]any{"body": "AUTH_TOKEN=abc"}, "", false},
		{"unrecognized scalar", 42, "", false},
		{"nil payload", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.caller.handle = func(method string, params map[string]any) (any, error) {
				assert.Equal(t, "agents.files.get", method)
				assert.Equal(t, "agent-1", params["agentId"])
				assert.Equal(t, "TOOLS.md", params["name"])
				return tt.payload, nil
			}

			content, ok := fx.syncer.agentFile(context.Background(), fx.cfg(), "agent-1", ToolsFileName)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, content)
		})
	}
}

func TestAgentFile_RemoteFailureIsNotFound(t *testing.T) {
	fx := newFixture(t)
	fx.caller.handle = func(method string, params map[string]any) (any, error) {
		return nil, &openclaw.GatewayError{Method: method, Message: "unsupported file"}
	}

	_, ok := fx.syncer.agentFile(context.Background(), fx.cfg(), "agent-1", ToolsFileName)
	assert.False(t, ok)
}

func TestExistingAuthToken(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		want    string
	}{
		{"token present", "AUTH_TOKEN=oc_abc123\nFOO=bar", "oc_abc123"},
		{"token absent", "FOO=bar", ""},
		{"token whitespace only", "AUTH_TOKEN=   ", ""},
		{"empty file", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			fx.caller.handle = func(method string, params map[string]any) (any, error) {
				return tt.payload, nil
			}

			token := fx.syncer.existingAuthToken(context.Background(), fx.cfg(), "agent-1")
			assert.Equal(t, tt.want, token)
		})
	}
}
