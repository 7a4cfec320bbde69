// ABOUTME: WebSocket JSON-RPC client for the OpenClaw gateway
// ABOUTME: One dial per call, single request/response frame, bearer auth on the upgrade

package openclaw

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

// Config is the per-call connection value derived from a gateway record.
// It is never persisted.
type Config struct {
	URL   string
	Token string
}

// Caller issues a single RPC against a gateway. The concrete Client dials
// a websocket; tests substitute fakes.
type Caller interface {
	Call(ctx context.Context, cfg Config, method string, params map[string]any) (any, error)
}

// Client is the production Caller. Each call dials the gateway, sends one
// request frame, reads one response frame, and closes the connection.
type Client struct {
	logger      *slog.Logger
	callTimeout time.Duration
}

// NewClient creates a gateway RPC client.
func NewClient() *Client {
	return &Client{
		logger:      slog.Default().With("component", "openclaw"),
		callTimeout: 30 * time.Second,
	}
}

type rpcRequest struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Message string `json:"message"`
}

// Call invokes a gateway method. Every failure, transport or
// gateway-reported, comes back as a *GatewayError so callers classify a
// single error kind.
func (c *Client) Call(ctx context.Context, cfg Config, method string, params map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	conn, _, err := websocket.Dial(ctx, websocketURL(cfg.URL), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, &GatewayError{Method: method, Message: fmt.Sprintf("websocket connect failed: %v", err)}
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	req := rpcRequest{
		ID:     uuid.New().String(),
		Method: method,
		Params: params,
	}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		return nil, &GatewayError{Method: method, Message: fmt.Sprintf("sending request: %v", err)}
	}

	var resp rpcResponse
	if err := wsjson.Read(ctx, conn, &resp); err != nil {
		return nil, &GatewayError{Method: method, Message: fmt.Sprintf("reading response: %v", err)}
	}
	if resp.Error != nil {
		return nil, &GatewayError{Method: method, Message: resp.Error.Message}
	}

	var result any
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, &GatewayError{Method: method, Message: fmt.Sprintf("decoding result: %v", err)}
		}
	}

	c.logger.Debug("gateway call completed", "method", method)
	return result, nil
}

// websocketURL rewrites http(s) gateway URLs to their ws(s) form.
func websocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}
