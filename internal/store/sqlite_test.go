// ABOUTME: Tests for the SQLite store - sessions, turns, jobs, handoffs, reminders, trace
// ABOUTME: Runs against an in-memory database with the real schema

package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSession(userID string) *Session {
	now := time.Now().UTC().Truncate(time.Second)
	return &Session{
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func TestSQLiteStore_SessionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	sess := newTestSession("user-1")
	sess.Fields.Location = "Denver"
	sess.Fields.TreatmentType = "outpatient"
	require.NoError(t, s.CreateSession(t.Context(), sess))

	got, err := s.GetSession(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Denver", got.Fields.Location)
	assert.Equal(t, "outpatient", got.Fields.TreatmentType)
	assert.Empty(t, got.ActiveSpecialist)
}

func TestSQLiteStore_DuplicateSessionRejected(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.CreateSession(t.Context(), newTestSession("user-1")))
	err := s.CreateSession(t.Context(), newTestSession("user-1"))
	assert.ErrorIs(t, err, ErrDuplicateSession)
}

func TestSQLiteStore_GetSessionNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetSession(t.Context(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpdateSession(t *testing.T) {
	s := newTestStore(t)

	sess := newTestSession("user-1")
	require.NoError(t, s.CreateSession(t.Context(), sess))

	sess.Fields.PaymentMethod = "private insurance"
	sess.ActiveSpecialist = "facility_search"
	sess.LastActivityAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.UpdateSession(t.Context(), sess))

	got, err := s.GetSession(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "private insurance", got.Fields.PaymentMethod)
	assert.Equal(t, "facility_search", got.ActiveSpecialist)
}

func TestSQLiteStore_TurnsOrderedAndLimited(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(t.Context(), newTestSession("user-1")))

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		turn := &Turn{
			ID:        uuid.New().String(),
			UserID:    "user-1",
			Role:      RoleUser,
			Content:   string(rune('a' + i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, s.AppendTurn(t.Context(), turn))
	}

	// The most recent N, in chronological order.
	turns, err := s.ListTurns(t.Context(), "user-1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "h", turns[0].Content)
	assert.Equal(t, "j", turns[2].Content)
}

func TestSQLiteStore_TurnVerdictsPersisted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(t.Context(), newTestSession("user-1")))

	turn := &Turn{
		ID:      uuid.New().String(),
		UserID:  "user-1",
		Role:    RoleUser,
		Content: "redacted message",
		Verdicts: []Verdict{
			{Kind: VerdictCrisis, Triggered: false, UrgencyLevel: 2, Rationale: "low"},
			{Kind: VerdictPrivacy, Triggered: true, Redactions: []string{"email"}},
		},
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, s.AppendTurn(t.Context(), turn))

	turns, err := s.ListTurns(t.Context(), "user-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Len(t, turns[0].Verdicts, 2)
	assert.Equal(t, VerdictCrisis, turns[0].Verdicts[0].Kind)
	assert.Equal(t, 2, turns[0].Verdicts[0].UrgencyLevel)
	assert.Equal(t, []string{"email"}, turns[0].Verdicts[1].Redactions)
}

func TestSQLiteStore_JobUpsertAndLatest(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	job := &SearchJob{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		Criteria:  "outpatient denver",
		Status:    JobQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.SaveJob(t.Context(), job))

	job.Status = JobCompleted
	job.Results = []Facility{{ID: "f-1", Name: "Riverside", Address: "Denver", Phone: "555"}}
	job.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, s.SaveJob(t.Context(), job))

	got, err := s.GetJob(t.Context(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, got.Status)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "Riverside", got.Results[0].Name)

	latest, err := s.GetLatestJob(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, job.ID, latest.ID)
}

func TestSQLiteStore_ListActiveJobsExcludesTerminal(t *testing.T) {
	s := newTestStore(t)

	now := time.Now().UTC()
	statuses := []JobStatus{JobQueued, JobCrawling, JobCompleted, JobFailed, JobCancelled, JobCompletedWithWarnings}
	for i, status := range statuses {
		require.NoError(t, s.SaveJob(t.Context(), &SearchJob{
			ID:        uuid.New().String(),
			UserID:    "user-1",
			Status:    status,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			UpdatedAt: now,
		}))
	}

	active, err := s.ListActiveJobs(t.Context(), "user-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, job := range active {
		assert.False(t, job.Status.Terminal())
	}
}

func TestSQLiteStore_GetJobNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetJob(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetLatestJob(t.Context(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_HandoffsPersisted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.CreateSession(t.Context(), newTestSession("user-1")))

	rec := &HandoffRecord{
		ID:           uuid.New().String(),
		UserID:       "user-1",
		FromStage:    "triage",
		ToSpecialist: "facility_search",
		Reason:       "intake complete",
		ContextTurns: 3,
		CreatedAt:    time.Now().UTC(),
	}
	assert.NoError(t, s.SaveHandoff(t.Context(), rec))
}

func TestSQLiteStore_Reminders(t *testing.T) {
	s := newTestStore(t)

	due := time.Now().UTC().Add(-time.Minute)
	rem := &Reminder{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		Message:   "call the clinic",
		DueAt:     due,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateReminder(t.Context(), rem))

	pending, err := s.ListDueReminders(t.Context(), time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "call the clinic", pending[0].Message)

	require.NoError(t, s.MarkReminderSent(t.Context(), rem.ID))

	pending, err = s.ListDueReminders(t.Context(), time.Now().UTC(), 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLiteStore_OutboundMessages(t *testing.T) {
	s := newTestStore(t)

	msg := &OutboundMessage{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		Channel:   "email",
		Recipient: "[REDACTED-EMAIL]",
		Body:      "appointment confirmation",
		CreatedAt: time.Now().UTC(),
	}
	assert.NoError(t, s.SaveOutboundMessage(t.Context(), msg))
}
