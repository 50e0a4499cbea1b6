// ABOUTME: Appointment scheduling specialist - books an intake slot and sets a reminder
// ABOUTME: Synchronous executor; failures surface as the registry's safe fallback

package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/carenav/navigator/internal/store"
)

// ReminderWriter is the slice of the store the scheduler needs.
type ReminderWriter interface {
	CreateReminder(ctx context.Context, rem *store.Reminder) error
}

// Scheduler books intake appointments. Facility-side booking happens over
// the phone in practice, so the scheduler confirms a proposed slot and sets
// a reminder for the user.
type Scheduler struct {
	store  ReminderWriter
	logger *slog.Logger
}

// NewScheduler creates the appointment scheduling specialist.
func NewScheduler(store ReminderWriter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:  store,
		logger: logger.With("component", "scheduler"),
	}
}

// Handle proposes the next business-day intake slot and records a reminder.
func (s *Scheduler) Handle(ctx context.Context, req *Request) (*Reply, error) {
	slot := nextIntakeSlot(time.Now())

	rem := &store.Reminder{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Message:   "Intake appointment " + slot.Format("Monday, January 2 at 3:04 PM"),
		DueAt:     slot.Add(-2 * time.Hour),
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateReminder(ctx, rem); err != nil {
		return nil, fmt.Errorf("recording appointment reminder: %w", err)
	}

	s.logger.Info("appointment proposed",
		"user_id", req.UserID,
		"slot", slot.Format(time.RFC3339))

	return &Reply{
		Text: fmt.Sprintf("I've penciled in an intake appointment for %s. The facility will confirm the exact time when they call you back - most do so within one business day. I'll also remind you two hours beforehand. Does that time work for you?",
			slot.Format("Monday, January 2 at 3:04 PM")),
	}, nil
}

// nextIntakeSlot returns 10:00 AM on the next weekday after now.
func nextIntakeSlot(now time.Time) time.Time {
	day := now.AddDate(0, 0, 1)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 10, 0, 0, 0, day.Location())
}
