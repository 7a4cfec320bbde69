// ABOUTME: GatewayError type and transient-failure classification for gateway calls
// ABOUTME: Pure substring predicate so retry decisions are testable without a live gateway

package openclaw

import (
	"errors"
	"strings"
)

// GatewayError is the single error kind produced by gateway RPC calls.
// The gateway reports failures as free-text messages, so classification
// is substring-based until the protocol grows structured error codes.
type GatewayError struct {
	Method  string
	Message string
}

func (e *GatewayError) Error() string {
	if e.Method == "" {
		return e.Message
	}
	return e.Method + ": " + e.Message
}

// IsTransient reports whether a gateway call failure is worth retrying.
// Only *GatewayError values are ever transient. Rules are evaluated in
// order; the "unsupported file" check wins over everything after it.
func IsTransient(err error) bool {
	var gerr *GatewayError
	if !errors.As(err, &gerr) {
		return false
	}
	msg := strings.ToLower(gerr.Error())
	if msg == "" {
		return false
	}
	if strings.Contains(msg, "unsupported file") {
		return false
	}
	if strings.Contains(msg, "received 1012") || strings.Contains(msg, "service restart") {
		return true
	}
	if strings.Contains(msg, "http 503") || (strings.Contains(msg, "503") && strings.Contains(msg, "websocket")) {
		return true
	}
	if strings.Contains(msg, "temporar") {
		return true
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return true
	}
	if strings.Contains(msg, "connection closed") || strings.Contains(msg, "connection reset") {
		return true
	}
	return false
}
