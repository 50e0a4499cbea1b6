// ABOUTME: Reminder specialist - persists follow-up reminders for the user
// ABOUTME: Synchronous executor; failures surface as the registry's safe fallback

package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carenav/navigator/internal/store"
)

// ReminderKeeper creates follow-up reminders from conversational requests.
type ReminderKeeper struct {
	store  ReminderWriter
	logger *slog.Logger
}

// NewReminderKeeper creates the reminder specialist.
func NewReminderKeeper(store ReminderWriter, logger *slog.Logger) *ReminderKeeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderKeeper{
		store:  store,
		logger: logger.With("component", "reminder"),
	}
}

// Handle records a reminder. The due time is parsed from a few common
// phrasings; anything unrecognized defaults to tomorrow morning.
func (r *ReminderKeeper) Handle(ctx context.Context, req *Request) (*Reply, error) {
	due := parseDue(req.Message, time.Now())

	rem := &store.Reminder{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Message:   req.Message,
		DueAt:     due,
		CreatedAt: time.Now(),
	}
	if err := r.store.CreateReminder(ctx, rem); err != nil {
		return nil, fmt.Errorf("creating reminder: %w", err)
	}

	r.logger.Info("reminder created",
		"user_id", req.UserID,
		"due_at", due.Format(time.RFC3339))

	return &Reply{
		Text: fmt.Sprintf("Done - I'll check in with you on %s.", due.Format("Monday, January 2 at 3:04 PM")),
	}, nil
}

// parseDue maps common relative phrasings to a due time.
func parseDue(message string, now time.Time) time.Time {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "next week"):
		return morningOf(now.AddDate(0, 0, 7))
	case strings.Contains(lower, "tonight"):
		return time.Date(now.Year(), now.Month(), now.Day(), 19, 0, 0, 0, now.Location())
	case strings.Contains(lower, "in an hour"), strings.Contains(lower, "in one hour"):
		return now.Add(time.Hour)
	case strings.Contains(lower, "tomorrow"):
		return morningOf(now.AddDate(0, 0, 1))
	default:
		return morningOf(now.AddDate(0, 0, 1))
	}
}

func morningOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 9, 0, 0, 0, t.Location())
}
