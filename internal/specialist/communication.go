// ABOUTME: Communication specialist - records outbound messages sent on the user's behalf
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

// OutboundWriter is the slice of the store the communicator needs.
type OutboundWriter interface {
	SaveOutboundMessage(ctx context.Context, msg *store.OutboundMessage) error
}

// Communicator drafts and records messages to facilities or the user's
// contacts. Actual delivery is handled by a downstream mailer; this
// specialist owns the authoritative outbound record.
type Communicator struct {
	store  OutboundWriter
	logger *slog.Logger
}

// NewCommunicator creates the communication specialist.
func NewCommunicator(store OutboundWriter, logger *slog.Logger) *Communicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Communicator{
		store:  store,
		logger: logger.With("component", "communication"),
	}
}

// Handle records an outbound message addressed to the contact on file.
func (c *Communicator) Handle(ctx context.Context, req *Request) (*Reply, error) {
	if req.Fields.Contact == "" {
		return &Reply{
			Text: "I don't have contact details on file yet, so I can't send anything on your behalf. Share an email or phone number and I'll take care of it.",
		}, nil
	}

	channel := "email"
	if !strings.Contains(req.Fields.Contact, "@") {
		channel = "sms"
	}

	msg := &store.OutboundMessage{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Channel:   channel,
		Recipient: req.Fields.Contact,
		Body:      req.Message,
		CreatedAt: time.Now(),
	}
	if err := c.store.SaveOutboundMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("recording outbound message: %w", err)
	}

	c.logger.Info("outbound message queued",
		"user_id", req.UserID,
		"channel", channel)

	return &Reply{
		Text: fmt.Sprintf("I've queued that message to go out by %s. You'll get a copy at the contact we have on file.", channel),
	}, nil
}
