// Package store persists conversation turns.
//
// The Store interface is the orchestrator's only view of durable history:
// append, list (by conversation or across all conversations, timestamp
// ordered), patch a turn's message by id, and delete by id or by
// conversation. Mutating calls return the affected record(s) so callers can
// confirm what actually changed.
//
// Two implementations are provided: SQLiteStore (modernc.org/sqlite, WAL
// mode, schema bootstrapped on open) for production, and MemoryStore for
// tests.
package store
