// Package store provides persistence for navigator sessions, turns,
// search jobs, and the audit trace.
//
// # Overview
//
// The data model follows the conversation core's invariants:
//
//   - Exactly one Session per user_id (primary key enforced).
//   - Turns are append-only; there is no update or delete path.
//   - SearchJobs persist every transition so status queries are
//     idempotent across restarts.
//   - The trace log is the append-only audit record of every guardrail
//     verdict, handoff, and job transition. Trace detail must already be
//     redacted by the caller.
//
// # Implementations
//
// SQLiteStore is the production implementation (modernc.org/sqlite, WAL
// mode, schema auto-created). MockStore is an in-memory implementation
// for tests.
package store
