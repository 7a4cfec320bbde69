// Package sync reconciles locally stored agent records with a remote
// OpenClaw gateway.
//
// # Overview
//
// A pass is single-shot and bounded: validate scope, process each
// in-scope agent strictly one at a time, then optionally sync the
// gateway's main (default) agent. For every agent the pass resolves the
// gateway-side identifier, reads back the AUTH_TOKEN stored in the
// agent's TOOLS.md pseudo-file, reconciles it against the locally stored
// token hash, and invokes the provisioning collaborator under bounded
// retry.
//
// # Error policy
//
// Sync never returns an error for expected conditions. Scope problems,
// transient-then-exhausted remote failures, permanent remote failures,
// missing tokens, and token drift all become structured entries in the
// returned Result; a failure in one phase ends that phase only.
//
// # Token rotation
//
// A rotated token's hash is durably committed before any remote call
// relies on the plaintext. There is no rollback if provisioning later
// fails: the next pass re-derives or re-rotates and rewrites the gateway
// file, so rotation is safe to repeat.
package sync
