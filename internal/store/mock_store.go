// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu        sync.RWMutex
	sessions  map[string]*Session         // keyed by user ID
	turns     map[string][]*Turn          // keyed by user ID, append order
	jobs      map[string]*SearchJob       // keyed by job ID
	handoffs  map[string][]*HandoffRecord // keyed by user ID
	reminders map[string]*Reminder        // keyed by reminder ID
	outbound  []*OutboundMessage
	trace     []TraceEntry
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions:  make(map[string]*Session),
		turns:     make(map[string][]*Turn),
		jobs:      make(map[string]*SearchJob),
		handoffs:  make(map[string][]*HandoffRecord),
		reminders: make(map[string]*Reminder),
	}
}

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.UserID]; exists {
		return ErrDuplicateSession
	}
	s := *session
	m.sessions[s.UserID] = &s
	return nil
}

// GetSession retrieves a session by user ID.
func (m *MockStore) GetSession(ctx context.Context, userID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *s
	return &result, nil
}

// UpdateSession replaces the stored session.
func (m *MockStore) UpdateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.UserID]; !ok {
		return ErrNotFound
	}
	s := *session
	m.sessions[s.UserID] = &s
	return nil
}

// AppendTurn appends a turn to the user's history.
func (m *MockStore) AppendTurn(ctx context.Context, turn *Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := *turn
	m.turns[t.UserID] = append(m.turns[t.UserID], &t)
	return nil
}

// ListTurns returns the most recent turns in chronological order.
func (m *MockStore) ListTurns(ctx context.Context, userID string, limit int) ([]*Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.turns[userID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]*Turn, 0, limit)
	for _, t := range all[len(all)-limit:] {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

// SaveJob stores or replaces a job.
func (m *MockStore) SaveJob(ctx context.Context, job *SearchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j := *job
	j.Results = append([]Facility(nil), job.Results...)
	m.jobs[j.ID] = &j
	return nil
}

// GetJob retrieves a job by ID.
func (m *MockStore) GetJob(ctx context.Context, jobID string) (*SearchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	result := *j
	result.Results = append([]Facility(nil), j.Results...)
	return &result, nil
}

// GetLatestJob retrieves the most recently created job for a user.
func (m *MockStore) GetLatestJob(ctx context.Context, userID string) (*SearchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *SearchJob
	for _, j := range m.jobs {
		if j.UserID != userID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	result := *latest
	result.Results = append([]Facility(nil), latest.Results...)
	return &result, nil
}

// ListActiveJobs returns the user's non-terminal jobs ordered by creation.
func (m *MockStore) ListActiveJobs(ctx context.Context, userID string) ([]*SearchJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []*SearchJob
	for _, j := range m.jobs {
		if j.UserID == userID && !j.Status.Terminal() {
			c := *j
			jobs = append(jobs, &c)
		}
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].CreatedAt.Before(jobs[k].CreatedAt) })
	return jobs, nil
}

// SaveHandoff stores a handoff record.
func (m *MockStore) SaveHandoff(ctx context.Context, rec *HandoffRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rec
	m.handoffs[r.UserID] = append(m.handoffs[r.UserID], &r)
	return nil
}

// Handoffs returns the recorded handoffs for a user (test helper).
func (m *MockStore) Handoffs(userID string) []*HandoffRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*HandoffRecord(nil), m.handoffs[userID]...)
}

// CreateReminder stores a reminder.
func (m *MockStore) CreateReminder(ctx context.Context, rem *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *rem
	m.reminders[r.ID] = &r
	return nil
}

// ListDueReminders returns unsent reminders due before the given time.
func (m *MockStore) ListDueReminders(ctx context.Context, before time.Time, limit int) ([]*Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rems []*Reminder
	for _, r := range m.reminders {
		if !r.Sent && !r.DueAt.After(before) {
			c := *r
			rems = append(rems, &c)
		}
	}
	sort.Slice(rems, func(i, k int) bool { return rems[i].DueAt.Before(rems[k].DueAt) })
	if limit > 0 && len(rems) > limit {
		rems = rems[:limit]
	}
	return rems, nil
}

// MarkReminderSent flags a reminder as delivered.
func (m *MockStore) MarkReminderSent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.reminders[id]
	if !ok {
		return ErrNotFound
	}
	r.Sent = true
	return nil
}

// SaveOutboundMessage stores an outbound message record.
func (m *MockStore) SaveOutboundMessage(ctx context.Context, msg *OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *msg
	m.outbound = append(m.outbound, &c)
	return nil
}

// OutboundMessages returns recorded outbound messages (test helper).
func (m *MockStore) OutboundMessages() []*OutboundMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*OutboundMessage(nil), m.outbound...)
}

// AppendTrace appends a trace entry.
func (m *MockStore) AppendTrace(ctx context.Context, e *TraceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := *e
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	m.trace = append(m.trace, entry)
	return nil
}

// ListTrace returns trace entries matching the filter, newest first.
func (m *MockStore) ListTrace(ctx context.Context, f TraceFilter) ([]TraceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := normalizeTraceLimit(f.Limit)
	var entries []TraceEntry
	for i := len(m.trace) - 1; i >= 0 && len(entries) < limit; i-- {
		e := m.trace[i]
		if f.UserID != nil && e.UserID != *f.UserID {
			continue
		}
		if f.Kind != nil && e.Kind != *f.Kind {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && e.Timestamp.After(*f.Until) {
			continue
		}
		entries = append(entries, e)
	}
	if entries == nil {
		entries = []TraceEntry{}
	}
	return entries, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
