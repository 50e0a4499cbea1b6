// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session/turn/job persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			user_id                TEXT PRIMARY KEY,
			contact                TEXT NOT NULL DEFAULT '',
			location               TEXT NOT NULL DEFAULT '',
			treatment_type         TEXT NOT NULL DEFAULT '',
			payment_method         TEXT NOT NULL DEFAULT '',
			insurance_provider     TEXT NOT NULL DEFAULT '',
			special_considerations TEXT NOT NULL DEFAULT '',
			active_specialist      TEXT NOT NULL DEFAULT '',
			created_at             DATETIME NOT NULL,
			last_activity_at       DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS turns (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			role          TEXT NOT NULL,
			content       TEXT NOT NULL,
			verdicts_json TEXT,
			ts            DATETIME NOT NULL,

			CHECK (role IN ('user', 'specialist', 'system')),
			FOREIGN KEY (user_id) REFERENCES sessions(user_id)
		);

		CREATE INDEX IF NOT EXISTS idx_turns_user_ts
			ON turns(user_id, ts);

		CREATE TABLE IF NOT EXISTS search_jobs (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			criteria     TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL,
			results_json TEXT,
			error_detail TEXT NOT NULL DEFAULT '',
			created_at   DATETIME NOT NULL,
			updated_at   DATETIME NOT NULL,

			CHECK (status IN ('not_started', 'queued', 'crawling', 'processing_data',
			                  'completed', 'completed_with_warnings', 'failed', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_jobs_user_created
			ON search_jobs(user_id, created_at);

		CREATE TABLE IF NOT EXISTS handoffs (
			id            TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			from_stage    TEXT NOT NULL,
			to_specialist TEXT NOT NULL,
			reason        TEXT NOT NULL DEFAULT '',
			context_turns INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS reminders (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			message    TEXT NOT NULL,
			due_at     DATETIME NOT NULL,
			sent       INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reminders_due
			ON reminders(sent, due_at);

		CREATE TABLE IF NOT EXISTS outbound_messages (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			channel    TEXT NOT NULL,
			recipient  TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS trace_log (
			trace_id    TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			stage       TEXT NOT NULL,
			kind        TEXT NOT NULL,
			ts          TEXT NOT NULL,
			detail_json TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_trace_user ON trace_log(user_id);
		CREATE INDEX IF NOT EXISTS idx_trace_kind ON trace_log(kind);
		CREATE INDEX IF NOT EXISTS idx_trace_ts ON trace_log(ts);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session row. Returns ErrDuplicateSession if a
// session for the user already exists.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO sessions (user_id, contact, location, treatment_type, payment_method,
		                      insurance_provider, special_considerations, active_specialist,
		                      created_at, last_activity_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.UserID,
		session.Fields.Contact,
		session.Fields.Location,
		session.Fields.TreatmentType,
		session.Fields.PaymentMethod,
		session.Fields.InsuranceProvider,
		session.Fields.SpecialConsiderations,
		session.ActiveSpecialist,
		session.CreatedAt,
		session.LastActivityAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by user ID.
func (s *SQLiteStore) GetSession(ctx context.Context, userID string) (*Session, error) {
	query := `
		SELECT user_id, contact, location, treatment_type, payment_method,
		       insurance_provider, special_considerations, active_specialist,
		       created_at, last_activity_at
		FROM sessions WHERE user_id = ?
	`
	var sess Session
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&sess.UserID,
		&sess.Fields.Contact,
		&sess.Fields.Location,
		&sess.Fields.TreatmentType,
		&sess.Fields.PaymentMethod,
		&sess.Fields.InsuranceProvider,
		&sess.Fields.SpecialConsiderations,
		&sess.ActiveSpecialist,
		&sess.CreatedAt,
		&sess.LastActivityAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &sess, nil
}

// UpdateSession updates the mutable fields of a session (intake fields,
// active specialist, last activity). Turns are not touched.
func (s *SQLiteStore) UpdateSession(ctx context.Context, session *Session) error {
	query := `
		UPDATE sessions
		SET contact = ?, location = ?, treatment_type = ?, payment_method = ?,
		    insurance_provider = ?, special_considerations = ?,
		    active_specialist = ?, last_activity_at = ?
		WHERE user_id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		session.Fields.Contact,
		session.Fields.Location,
		session.Fields.TreatmentType,
		session.Fields.PaymentMethod,
		session.Fields.InsuranceProvider,
		session.Fields.SpecialConsiderations,
		session.ActiveSpecialist,
		session.LastActivityAt,
		session.UserID,
	)
	if err != nil {
		return fmt.Errorf("updating session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendTurn inserts a turn. Turns are never updated or deleted.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *Turn) error {
	var verdictsJSON *string
	if len(turn.Verdicts) > 0 {
		data, err := json.Marshal(turn.Verdicts)
		if err != nil {
			return fmt.Errorf("marshaling verdicts: %w", err)
		}
		str := string(data)
		verdictsJSON = &str
	}

	query := `
		INSERT INTO turns (id, user_id, role, content, verdicts_json, ts)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		turn.ID,
		turn.UserID,
		turn.Role,
		turn.Content,
		verdictsJSON,
		turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting turn: %w", err)
	}
	return nil
}

// ListTurns returns the most recent turns for a user in chronological order.
func (s *SQLiteStore) ListTurns(ctx context.Context, userID string, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, user_id, role, content, verdicts_json, ts
		FROM (
			SELECT id, user_id, role, content, verdicts_json, ts
			FROM turns WHERE user_id = ?
			ORDER BY ts DESC LIMIT ?
		)
		ORDER BY ts ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []*Turn
	for rows.Next() {
		var t Turn
		var roleStr string
		var verdictsJSON *string
		if err := rows.Scan(&t.ID, &t.UserID, &roleStr, &t.Content, &verdictsJSON, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Role = TurnRole(roleStr)
		if verdictsJSON != nil {
			if err := json.Unmarshal([]byte(*verdictsJSON), &t.Verdicts); err != nil {
				return nil, fmt.Errorf("unmarshaling verdicts: %w", err)
			}
		}
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating turns: %w", err)
	}
	return turns, nil
}

// SaveHandoff inserts a handoff record.
func (s *SQLiteStore) SaveHandoff(ctx context.Context, rec *HandoffRecord) error {
	query := `
		INSERT INTO handoffs (id, user_id, from_stage, to_specialist, reason, context_turns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.FromStage, rec.ToSpecialist, rec.Reason, rec.ContextTurns, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting handoff: %w", err)
	}
	return nil
}

// CreateReminder inserts a reminder.
func (s *SQLiteStore) CreateReminder(ctx context.Context, rem *Reminder) error {
	query := `
		INSERT INTO reminders (id, user_id, message, due_at, sent, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		rem.ID, rem.UserID, rem.Message, rem.DueAt, boolToInt(rem.Sent), rem.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting reminder: %w", err)
	}
	return nil
}

// ListDueReminders returns unsent reminders due before the given time.
func (s *SQLiteStore) ListDueReminders(ctx context.Context, before time.Time, limit int) ([]*Reminder, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, user_id, message, due_at, sent, created_at
		FROM reminders
		WHERE sent = 0 AND due_at <= ?
		ORDER BY due_at ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("querying reminders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rems []*Reminder
	for rows.Next() {
		var r Reminder
		var sent int
		if err := rows.Scan(&r.ID, &r.UserID, &r.Message, &r.DueAt, &sent, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning reminder: %w", err)
		}
		r.Sent = sent != 0
		rems = append(rems, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reminders: %w", err)
	}
	return rems, nil
}

// MarkReminderSent flags a reminder as delivered.
func (s *SQLiteStore) MarkReminderSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reminders SET sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("updating reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveOutboundMessage inserts an outbound message record.
func (s *SQLiteStore) SaveOutboundMessage(ctx context.Context, msg *OutboundMessage) error {
	query := `
		INSERT INTO outbound_messages (id, user_id, channel, recipient, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.UserID, msg.Channel, msg.Recipient, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting outbound message: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports constraint failures in the error string;
	// there is no exported error type to match against.
	return strings.Contains(err.Error(), "constraint failed")
}
