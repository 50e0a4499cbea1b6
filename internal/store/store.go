// ABOUTME: Store interface and data types for navigator persistence
// ABOUTME: Defines Session, Turn, SearchJob structs and the Store interface for database operations

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateSession is returned when trying to create a session that already exists
var ErrDuplicateSession = errors.New("session already exists")

// TurnRole identifies who produced a turn.
type TurnRole string

const (
	RoleUser       TurnRole = "user"
	RoleSpecialist TurnRole = "specialist"
	RoleSystem     TurnRole = "system"
)

// VerdictKind identifies which guardrail produced a verdict.
type VerdictKind string

const (
	VerdictCrisis         VerdictKind = "crisis"
	VerdictPrivacy        VerdictKind = "privacy"
	VerdictTopic          VerdictKind = "topic"
	VerdictResponseSafety VerdictKind = "response_safety"
)

// Verdict is the outcome of a single guardrail check, attached to the turn
// it was produced for. Verdicts are values, not errors: pipeline stages
// branch on Triggered rather than unwinding.
type Verdict struct {
	Kind         VerdictKind `json:"kind"`
	Triggered    bool        `json:"triggered"`
	UrgencyLevel int         `json:"urgency_level,omitempty"` // crisis only, 1-5
	Rationale    string      `json:"rationale,omitempty"`
	Redactions   []string    `json:"redactions,omitempty"` // privacy only, redacted span labels
}

// IntakeFields is the structured intake data collected by triage.
// A zero value for a field means it has not been captured yet.
type IntakeFields struct {
	Contact               string `json:"contact,omitempty"`
	Location              string `json:"location,omitempty"`
	TreatmentType         string `json:"treatment_type,omitempty"`
	PaymentMethod         string `json:"payment_method,omitempty"`
	InsuranceProvider     string `json:"insurance_provider,omitempty"`
	SpecialConsiderations string `json:"special_considerations,omitempty"`
}

// Session represents one user's conversation session. Exactly one per
// user_id; sessions are never deleted, the active specialist lapses after
// an inactivity timeout.
type Session struct {
	UserID           string
	Fields           IntakeFields
	ActiveSpecialist string
	CreatedAt        time.Time
	LastActivityAt   time.Time
}

// Turn is a single message within a session. Immutable once written.
type Turn struct {
	ID        string
	UserID    string
	Role      TurnRole
	Content   string
	Verdicts  []Verdict
	Timestamp time.Time
}

// JobStatus is the state of a SearchJob.
type JobStatus string

const (
	JobNotStarted            JobStatus = "not_started"
	JobQueued                JobStatus = "queued"
	JobCrawling              JobStatus = "crawling"
	JobProcessingData        JobStatus = "processing_data"
	JobCompleted             JobStatus = "completed"
	JobCompletedWithWarnings JobStatus = "completed_with_warnings"
	JobFailed                JobStatus = "failed"
	JobCancelled             JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCompletedWithWarnings, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Facility is a single treatment facility found by a search job.
type Facility struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Address  string   `json:"address,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Email    string   `json:"email,omitempty"`
	Services []string `json:"services,omitempty"`
	URL      string   `json:"url,omitempty"`
}

// SearchJob is an asynchronous facility search tracked independently of the
// turn that launched it.
type SearchJob struct {
	ID          string
	UserID      string
	Criteria    string
	Status      JobStatus
	Results     []Facility
	ErrorDetail string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HandoffRecord captures a transfer of control from triage to a specialist.
type HandoffRecord struct {
	ID           string
	UserID       string
	FromStage    string
	ToSpecialist string
	Reason       string
	ContextTurns int // number of turns included in the filtered context
	CreatedAt    time.Time
}

// Reminder is a scheduled follow-up created by the reminder specialist.
type Reminder struct {
	ID        string
	UserID    string
	Message   string
	DueAt     time.Time
	Sent      bool
	CreatedAt time.Time
}

// OutboundMessage is a record of a message sent on the user's behalf by the
// communication specialist.
type OutboundMessage struct {
	ID        string
	UserID    string
	Channel   string // "email", "sms"
	Recipient string
	Body      string
	CreatedAt time.Time
}

// Store defines the interface for session, turn, and job persistence.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, userID string) (*Session, error)
	UpdateSession(ctx context.Context, session *Session) error

	// Turns (append-only)
	AppendTurn(ctx context.Context, turn *Turn) error
	ListTurns(ctx context.Context, userID string, limit int) ([]*Turn, error)

	// Search jobs
	SaveJob(ctx context.Context, job *SearchJob) error
	GetJob(ctx context.Context, jobID string) (*SearchJob, error)
	GetLatestJob(ctx context.Context, userID string) (*SearchJob, error)
	ListActiveJobs(ctx context.Context, userID string) ([]*SearchJob, error)

	// Handoffs
	SaveHandoff(ctx context.Context, rec *HandoffRecord) error

	// Reminders
	CreateReminder(ctx context.Context, rem *Reminder) error
	ListDueReminders(ctx context.Context, before time.Time, limit int) ([]*Reminder, error)
	MarkReminderSent(ctx context.Context, id string) error

	// Outbound messages
	SaveOutboundMessage(ctx context.Context, msg *OutboundMessage) error

	// Trace (append-only audit log)
	AppendTrace(ctx context.Context, e *TraceEntry) error
	ListTrace(ctx context.Context, f TraceFilter) ([]TraceEntry, error)

	// Close releases any resources held by the store
	Close() error
}
