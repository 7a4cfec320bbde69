// Package openclaw is the client side of the OpenClaw gateway RPC protocol.
//
// The gateway speaks JSON-RPC over a websocket. Calls are single-shot:
// dial, one request frame, one response frame, close. All failures are
// surfaced as *GatewayError carrying the gateway's free-text message.
//
// Because gateways shed connections under load and report failures as
// text, the package also provides IsTransient, a substring classifier
// over that message, and WithRetry/Do, which wrap an operation in
// bounded exponential backoff gated on IsTransient.
package openclaw
