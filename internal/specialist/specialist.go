// ABOUTME: Closed specialist dispatch surface - Kind constants, Handler contract, Registry
// ABOUTME: Specialists are reachable only through Dispatch; failures become user-safe fallback replies

package specialist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/carenav/navigator/internal/store"
)

// Kind identifies a specialist. The set is closed: dispatch rejects anything
// not listed here, so no handler can be reached by an unconstrained path.
type Kind string

const (
	KindFacilitySearch Kind = "facility_search"
	KindInsurance      Kind = "insurance_verification"
	KindScheduling     Kind = "appointment_scheduling"
	KindIntakeForm     Kind = "intake_form"
	KindReminder       Kind = "reminder"
	KindCommunication  Kind = "communication"
)

// ValidKinds lists every dispatchable specialist.
var ValidKinds = []Kind{
	KindFacilitySearch,
	KindInsurance,
	KindScheduling,
	KindIntakeForm,
	KindReminder,
	KindCommunication,
}

// ErrUnknownKind is returned when dispatch is attempted for a kind outside
// the closed set.
var ErrUnknownKind = errors.New("unknown specialist kind")

// Request is the least-privilege view a specialist receives: the redacted
// current message, the bounded filtered context, and the structured intake
// fields. A specialist must not reach beyond this.
type Request struct {
	UserID  string
	Message string        // redacted current message
	Context []*store.Turn // bounded, keyword-filtered history
	Fields  store.IntakeFields
}

// Reply is what a specialist hands back to the session manager.
type Reply struct {
	Text         string
	JobReference string              // set when the specialist launched a background job
	Results      []store.Facility    // set when results are immediately available
	Fields       *store.IntakeFields // field updates for the session (intake form extraction)
}

// Handler is the single specialist contract.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Reply, error)
}

// fallbackReplies are the user-safe replies substituted when a specialist
// fails internally. Raw errors never reach the user.
var fallbackReplies = map[Kind]string{
	KindFacilitySearch: "I wasn't able to run a facility search just now. Please try again in a few minutes - your information is saved and we can pick up right where we left off.",
	KindInsurance:      "I couldn't verify insurance details at the moment. You can also call the number on the back of your insurance card, or we can try again shortly.",
	KindScheduling:     "I couldn't set up that appointment just now. We can try again in a little while, or I can help you with something else in the meantime.",
	KindIntakeForm:     "I had trouble reading that document. You can tell me the details directly, or try uploading it again.",
	KindReminder:       "I couldn't save that reminder just now. Please try again in a moment.",
	KindCommunication:  "I couldn't send that message right now. We can try again shortly.",
}

// Registry holds the closed set of specialist handlers.
type Registry struct {
	handlers map[Kind]Handler
	trace    TraceWriter
	logger   *slog.Logger
}

// TraceWriter is the slice of the store the registry needs for auditing
// specialist failures.
type TraceWriter interface {
	AppendTrace(ctx context.Context, e *store.TraceEntry) error
}

// NewRegistry creates an empty registry. Pass nil logger for default.
func NewRegistry(trace TraceWriter, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[Kind]Handler),
		trace:    trace,
		logger:   logger.With("component", "specialist"),
	}
}

// Register binds a handler to a kind. Registering an unknown kind or
// re-registering an existing one is a programming error.
func (r *Registry) Register(kind Kind, h Handler) error {
	if !isValidKind(kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("specialist %q already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

// Dispatch routes a request to exactly one specialist. Internal failures are
// converted to the kind's fallback reply and audited; the error return is
// reserved for dispatch-surface violations (unknown kind).
func (r *Registry) Dispatch(ctx context.Context, kind Kind, req *Request) (*Reply, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	reply, err := h.Handle(ctx, req)
	if err != nil {
		r.logger.Error("specialist execution failed",
			"specialist", kind,
			"user_id", req.UserID,
			"error", err)
		if r.trace != nil {
			_ = r.trace.AppendTrace(ctx, &store.TraceEntry{
				UserID: req.UserID,
				Stage:  "specialist",
				Kind:   store.TraceSpecialistFailure,
				Detail: map[string]any{
					"specialist": string(kind),
					"failure":    err.Error(),
				},
			})
		}
		return &Reply{Text: fallbackReplies[kind]}, nil
	}
	return reply, nil
}

func isValidKind(kind Kind) bool {
	for _, k := range ValidKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// contextKeywords maps each specialist to the terms that make a past turn
// relevant to it. The triage router uses this to build the bounded context.
var contextKeywords = map[Kind][]string{
	KindFacilitySearch: {"facility", "treatment", "program", "rehab", "detox", "location", "near", "outpatient", "inpatient", "search"},
	KindInsurance:      {"insurance", "coverage", "covered", "provider", "plan", "copay", "deductible", "aetna", "cigna", "medicaid", "medicare"},
	KindScheduling:     {"appointment", "schedule", "intake", "visit", "time", "tomorrow", "week", "available", "reschedule"},
	KindIntakeForm:     {"form", "document", "paperwork", "upload", "fill", "field", "intake"},
	KindReminder:       {"remind", "reminder", "follow up", "follow-up", "check in", "later"},
	KindCommunication:  {"email", "message", "send", "contact", "call", "text", "reach"},
}

// ContextKeywords returns the keyword set used to filter history for a
// specialist. The returned slice must not be modified.
func ContextKeywords(kind Kind) []string {
	return contextKeywords[kind]
}
