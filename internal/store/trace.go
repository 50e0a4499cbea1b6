// ABOUTME: Trace entry entity and store methods for the append-only audit log
// ABOUTME: Records every guardrail verdict, handoff, and job transition for compliance and debugging

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TraceKind classifies an auditable event.
type TraceKind string

const (
	TraceGuardrailVerdict  TraceKind = "guardrail_verdict"
	TraceHandoff           TraceKind = "handoff"
	TraceJobTransition     TraceKind = "job_transition"
	TraceSpecialistFailure TraceKind = "specialist_failure"
	TraceDegradedMode      TraceKind = "degraded_mode"
	TraceResponseRewrite   TraceKind = "response_rewrite"
)

// ValidTraceKinds lists all valid trace kinds.
var ValidTraceKinds = []TraceKind{
	TraceGuardrailVerdict,
	TraceHandoff,
	TraceJobTransition,
	TraceSpecialistFailure,
	TraceDegradedMode,
	TraceResponseRewrite,
}

// TraceEntry is a single audit log record. The log is append-only: entries
// are never updated or deleted. Detail must already be redacted - the trace
// is the compliance record, it must not re-introduce PII the privacy
// guardrail removed.
type TraceEntry struct {
	ID        string         // UUID v4
	UserID    string         // session the event belongs to
	Stage     string         // pipeline stage that produced the event
	Kind      TraceKind      // what kind of event
	Detail    map[string]any // additional context (max 64KB JSON)
	Timestamp time.Time      // when it happened
}

// TraceFilter specifies filtering options for listing trace entries.
type TraceFilter struct {
	Since  *time.Time // entries after this time
	Until  *time.Time // entries before this time
	UserID *string    // filter by session
	Kind   *TraceKind // filter by event kind
	Limit  int        // max results (default 100, max 1000)
}

// AppendTrace appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendTrace(ctx context.Context, e *TraceEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling trace detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO trace_log (trace_id, user_id, stage, kind, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		e.Stage,
		e.Kind,
		e.Timestamp.UTC().Format(time.RFC3339),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting trace entry: %w", err)
	}

	s.logger.Debug("appended trace",
		"id", e.ID,
		"user_id", e.UserID,
		"stage", e.Stage,
		"kind", e.Kind,
	)
	return nil
}

// normalizeTraceLimit applies default (100) and cap (1000) to trace limit.
func normalizeTraceLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// scanTraceEntry scans a row into a TraceEntry.
func scanTraceEntry(scanner interface{ Scan(dest ...any) error }) (TraceEntry, error) {
	var e TraceEntry
	var kindStr, tsStr string
	var detailJSON *string

	if err := scanner.Scan(
		&e.ID,
		&e.UserID,
		&e.Stage,
		&kindStr,
		&tsStr,
		&detailJSON,
	); err != nil {
		return e, fmt.Errorf("scanning trace entry: %w", err)
	}

	e.Kind = TraceKind(kindStr)
	var err error
	e.Timestamp, err = time.Parse(time.RFC3339, tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}

	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}

const traceLogQuery = `
	SELECT trace_id, user_id, stage, kind, ts, detail_json
	FROM trace_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR ts <= ?)
	  AND (? IS NULL OR user_id = ?)
	  AND (? IS NULL OR kind = ?)
	ORDER BY ts DESC
	LIMIT ?
`

// ListTrace returns trace entries matching the filter criteria.
// Results are returned newest first (DESC by timestamp).
func (s *SQLiteStore) ListTrace(ctx context.Context, f TraceFilter) ([]TraceEntry, error) {
	limit := normalizeTraceLimit(f.Limit)

	var sinceStr, untilStr, kindStr *string
	if f.Since != nil {
		v := f.Since.UTC().Format(time.RFC3339)
		sinceStr = &v
	}
	if f.Until != nil {
		v := f.Until.UTC().Format(time.RFC3339)
		untilStr = &v
	}
	if f.Kind != nil {
		v := string(*f.Kind)
		kindStr = &v
	}

	rows, err := s.db.QueryContext(ctx, traceLogQuery,
		sinceStr, sinceStr,
		untilStr, untilStr,
		f.UserID, f.UserID,
		kindStr, kindStr,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying trace log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []TraceEntry
	for rows.Next() {
		e, err := scanTraceEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating trace entries: %w", err)
	}

	if entries == nil {
		entries = []TraceEntry{}
	}
	return entries, nil
}
