package openclaw

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    bool
	}{
		{"service restart close code", "connection closed: received 1012 (service restart)", true},
		{"service restart text", "gateway service restart in progress", true},
		{"http 503", "upgrade failed: HTTP 503 Service Unavailable", true},
		{"503 with websocket", "websocket handshake rejected with 503", true},
		{"temporary", "temporarily unavailable", true},
		{"timeout", "call timeout after 30s", true},
		{"timed out", "request timed out", true},
		{"connection closed", "connection closed unexpectedly", true},
		{"connection reset", "read: connection reset by peer", true},
		{"unrelated", "invalid params", false},
		{"empty message", "", false},
		{"bare 503 without websocket", "backend returned 503", false},
		{"unsupported file overrides 503", "HTTP 503 unsupported file", false},
		{"unsupported file overrides timeout", "timeout while handling unsupported file", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &GatewayError{Message: tt.message}
			assert.Equal(t, tt.want, IsTransient(err))
		})
	}
}

func TestIsTransient_NonGatewayError(t *testing.T) {
	assert.False(t, IsTransient(errors.New("connection reset by peer")))
	assert.False(t, IsTransient(nil))
}

func TestIsTransient_WrappedGatewayError(t *testing.T) {
	inner := &GatewayError{Method: "agents.list", Message: "request timed out"}
	wrapped := fmt.Errorf("calling gateway: %w", inner)
	assert.True(t, IsTransient(wrapped))
}

func TestGatewayError_Error(t *testing.T) {
	assert.Equal(t, "agents.list: boom", (&GatewayError{Method: "agents.list", Message: "boom"}).Error())
	assert.Equal(t, "boom", (&GatewayError{Message: "boom"}).Error())
}
