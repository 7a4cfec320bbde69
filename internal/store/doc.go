// Package store provides persistent storage for openclaw-sync using SQLite.
//
// # Data Models
//
//   - Gateway: a remote OpenClaw endpoint (URL, bearer token, main session key)
//   - Board: a named grouping of agents under exactly one gateway
//   - Agent: a local agent record with its session key and auth token hash
//
// # Architecture
//
// The Store interface defines the operations the sync engine and CLI
// need; SQLiteStore implements it on modernc.org/sqlite with the schema
// created on open. MockStore is an in-memory implementation for tests.
//
// Timestamps are stored as RFC 3339 strings. Token hash updates are
// committed immediately and re-read so callers always operate on the
// durably stored row.
package store
