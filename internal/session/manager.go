// ABOUTME: Conversation session manager - binds a user to ordered turn history and runs the pipeline
// ABOUTME: Serializes turns per user, enforces guardrail ordering, and records every decision in the trace

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/carenav/navigator/internal/guardrail"
	"github.com/carenav/navigator/internal/specialist"
	"github.com/carenav/navigator/internal/store"
	"github.com/carenav/navigator/internal/triage"
)

// DefaultInactivityTimeout is how long an active specialist assignment
// survives without user activity.
const DefaultInactivityTimeout = 30 * time.Minute

// rateLimitReply is the templated reply for a user over the turn budget.
const rateLimitReply = "You've reached today's message limit. Your information is saved - come back tomorrow and we'll pick up right where we left off. If you're in crisis, call or text 988 any time."

// Manager is the top-level orchestrator for conversation turns.
type Manager struct {
	store      store.Store
	input      *guardrail.InputPipeline
	output     *guardrail.OutputValidator
	triage     *triage.Coordinator
	registry   *specialist.Registry
	logger     *slog.Logger
	inactivity time.Duration

	// maxTurnsPerDay bounds per-user daily turns; 0 means unlimited.
	// Crisis short-circuits are never rate limited.
	maxTurnsPerDay int64

	locks      sync.Map     // userID -> *sync.Mutex, serializes turns per user
	counters   sync.Map     // userID+day -> *atomic.Int64 turn counter
	counterDay atomic.Value // UTC day the counters are scoped to; rollover prunes
}

// Config bundles the manager's collaborators.
type Config struct {
	Store          store.Store
	Input          *guardrail.InputPipeline
	Output         *guardrail.OutputValidator
	Triage         *triage.Coordinator
	Registry       *specialist.Registry
	Logger         *slog.Logger
	Inactivity     time.Duration
	MaxTurnsPerDay int64
}

// NewManager creates a session manager.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	inactivity := cfg.Inactivity
	if inactivity <= 0 {
		inactivity = DefaultInactivityTimeout
	}
	return &Manager{
		store:          cfg.Store,
		input:          cfg.Input,
		output:         cfg.Output,
		triage:         cfg.Triage,
		registry:       cfg.Registry,
		logger:         logger.With("component", "session"),
		inactivity:     inactivity,
		maxTurnsPerDay: cfg.MaxTurnsPerDay,
	}
}

// TurnResult is the outcome of processing one user message.
type TurnResult struct {
	Reply           string
	CrisisTriggered bool
	JobReference    string
}

// HandleMessage processes one user message end to end:
// guardrails -> triage/router -> specialist -> output guardrail -> reply.
// Turns for the same user are serialized; different users run concurrently.
func (m *Manager) HandleMessage(ctx context.Context, userID, message string) (*TurnResult, error) {
	if userID == "" || message == "" {
		return nil, fmt.Errorf("user_id and message are required")
	}

	// Serialize per user: no two turns for the same user run concurrently,
	// which keeps the turn history append-only and ordered.
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	sess, created, err := m.ensureSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}

	// An idle specialist assignment lapses rather than lingering forever.
	if sess.ActiveSpecialist != "" && time.Since(sess.LastActivityAt) > m.inactivity {
		m.logger.Debug("active specialist lapsed", "user_id", userID, "was", sess.ActiveSpecialist)
		sess.ActiveSpecialist = ""
	}

	// 1. Input guardrails: crisis -> privacy redaction -> topic.
	check := m.input.Check(ctx, userID, message)
	m.traceVerdicts(ctx, userID, check)

	// 2. Record the user's turn. Only the redacted content is ever
	// persisted - the store and trace must not hold what privacy removed.
	userTurn := &store.Turn{
		ID:        uuid.New().String(),
		UserID:    userID,
		Role:      store.RoleUser,
		Content:   check.Redacted,
		Verdicts:  check.Verdicts,
		Timestamp: time.Now().UTC(),
	}
	if err := m.store.AppendTurn(ctx, userTurn); err != nil {
		return nil, fmt.Errorf("recording turn: %w", err)
	}

	// 3. Guardrail short-circuit: templated reply, no specialist this turn.
	// A topic trip is ignored mid-intake - a bare answer like a city name
	// carries no treatment term, yet it is exactly what was asked for.
	// Crisis trips always stand.
	if check.ShortCircuit && !check.CrisisTriggered && !triage.Complete(&sess.Fields) {
		check.ShortCircuit = false
		check.Reply = ""
	}
	if check.ShortCircuit {
		m.finishTurn(ctx, sess, store.RoleSystem, check.Reply, nil)
		return &TurnResult{
			Reply:           check.Reply,
			CrisisTriggered: check.CrisisTriggered,
		}, nil
	}

	// 4. Rate limit, checked after the crisis gate so a crisis message is
	// never suppressed by a quota. Atomic increment-and-check: concurrent
	// duplicate turns cannot undercount.
	if m.overTurnBudget(userID) {
		m.finishTurn(ctx, sess, store.RoleSystem, rateLimitReply, nil)
		return &TurnResult{Reply: rateLimitReply}, nil
	}

	// 5. Intake collection until the required fields are captured. The
	// first message of a brand-new session is a greeting, not an answer:
	// it gets the opening prompt instead of being consumed as a field.
	if !triage.Complete(&sess.Fields) {
		if created {
			reply := "Hi, I'm here to help you find treatment options. " + m.triage.FirstPrompt(&sess.Fields)
			m.finishTurn(ctx, sess, store.RoleSystem, reply, nil)
			return &TurnResult{Reply: reply}, nil
		}
		return m.handleIntakeTurn(ctx, sess, message, check.Redacted)
	}

	// 6. Routed specialist turn.
	kind := triage.DetectIntent(check.Redacted)
	return m.handleSpecialistTurn(ctx, sess, kind, check.Redacted, "routed by intent")
}

// History returns a user's recent turns, newest last.
func (m *Manager) History(ctx context.Context, userID string, limit int) ([]*store.Turn, error) {
	return m.store.ListTurns(ctx, userID, limit)
}

// handleIntakeTurn feeds the answer to the triage coordinator. The raw
// answer is used for field capture - intake deliberately collects contact
// details, and the structured fields are that record - while only the
// redacted text is ever shown to a specialist or stored in turns. When the
// final required field lands, the summary reply is followed by an immediate
// handoff to facility search.
func (m *Manager) handleIntakeTurn(ctx context.Context, sess *store.Session, answer, redacted string) (*TurnResult, error) {
	res := m.triage.Collect(sess.UserID, &sess.Fields, answer)

	if res.Handoff == nil {
		m.finishTurn(ctx, sess, store.RoleSystem, res.Reply, nil)
		return &TurnResult{Reply: res.Reply}, nil
	}

	// Summary emitted, handoff issued: run the specialist in the same turn
	// and append its acknowledgement to the summary.
	turnRes, err := m.handleSpecialistTurn(ctx, sess, *res.Handoff, redacted, res.Reason)
	if err != nil {
		return nil, err
	}
	turnRes.Reply = res.Reply + "\n\n" + turnRes.Reply
	return turnRes, nil
}

// handleSpecialistTurn dispatches to exactly one specialist with a bounded
// context view, validates the reply, and records the handoff.
func (m *Manager) handleSpecialistTurn(ctx context.Context, sess *store.Session, kind specialist.Kind, message, reason string) (*TurnResult, error) {
	history, err := m.store.ListTurns(ctx, sess.UserID, 50)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	filtered := triage.FilterContext(history, kind, triage.DefaultContextTurns)

	handoff := &store.HandoffRecord{
		ID:           uuid.New().String(),
		UserID:       sess.UserID,
		FromStage:    "triage",
		ToSpecialist: string(kind),
		Reason:       reason,
		ContextTurns: len(filtered),
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.store.SaveHandoff(ctx, handoff); err != nil {
		m.logger.Error("recording handoff failed", "user_id", sess.UserID, "error", err)
	}
	m.trace(ctx, &store.TraceEntry{
		UserID: sess.UserID,
		Stage:  "router",
		Kind:   store.TraceHandoff,
		Detail: map[string]any{
			"to_specialist": string(kind),
			"reason":        reason,
			"context_turns": len(filtered),
		},
	})

	req := &specialist.Request{
		UserID:  sess.UserID,
		Message: message,
		Context: filtered,
		Fields:  sess.Fields,
	}
	reply, err := m.registry.Dispatch(ctx, kind, req)
	if err != nil {
		// Only a dispatch-surface violation reaches here.
		return nil, fmt.Errorf("dispatching to %s: %w", kind, err)
	}

	// Merge field updates the specialist proposed (intake form extraction).
	if reply.Fields != nil {
		mergeFields(&sess.Fields, reply.Fields)
	}

	// Output guardrail: validate, regenerate boundedly, substitute if needed.
	outcome := m.output.Validate(ctx, sess.UserID, reply.Text, false, func(rctx context.Context, attempt int) (string, error) {
		regen, rerr := m.registry.Dispatch(rctx, kind, req)
		if rerr != nil {
			return "", rerr
		}
		return regen.Text, nil
	})
	if outcome.Verdict.Triggered || outcome.Substituted {
		m.trace(ctx, &store.TraceEntry{
			UserID: sess.UserID,
			Stage:  "guardrail_output",
			Kind:   store.TraceResponseRewrite,
			Detail: map[string]any{
				"specialist":  string(kind),
				"regenerated": outcome.Regenerated,
				"substituted": outcome.Substituted,
				"rationale":   outcome.Verdict.Rationale,
			},
		})
	}

	sess.ActiveSpecialist = string(kind)
	m.finishTurn(ctx, sess, store.RoleSpecialist, outcome.Reply, []store.Verdict{outcome.Verdict})

	return &TurnResult{
		Reply:        outcome.Reply,
		JobReference: reply.JobReference,
	}, nil
}

// finishTurn appends the reply turn under the given role and refreshes the
// session. Persistence failures are logged, not surfaced - the reply is
// already committed to the user.
func (m *Manager) finishTurn(ctx context.Context, sess *store.Session, role store.TurnRole, reply string, verdicts []store.Verdict) {
	turn := &store.Turn{
		ID:        uuid.New().String(),
		UserID:    sess.UserID,
		Role:      role,
		Content:   reply,
		Verdicts:  verdicts,
		Timestamp: time.Now().UTC(),
	}
	if err := m.store.AppendTurn(ctx, turn); err != nil {
		m.logger.Error("recording reply turn failed", "user_id", sess.UserID, "error", err)
	}

	sess.LastActivityAt = time.Now().UTC()
	if err := m.store.UpdateSession(ctx, sess); err != nil {
		m.logger.Error("updating session failed", "user_id", sess.UserID, "error", err)
	}
}

// ensureSession resolves an existing session or creates a new one, handling
// the create race the same way concurrent first messages would hit it. The
// second return reports whether the session was created this call.
func (m *Manager) ensureSession(ctx context.Context, userID string) (*store.Session, bool, error) {
	sess, err := m.store.GetSession(ctx, userID)
	if err == nil {
		return sess, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	sess = &store.Session{
		UserID:         userID,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		if errors.Is(err, store.ErrDuplicateSession) {
			existing, gerr := m.store.GetSession(ctx, userID)
			return existing, false, gerr
		}
		return nil, false, err
	}
	m.logger.Debug("session created", "user_id", userID)
	return sess, true, nil
}

// userLock returns the per-user turn mutex, creating it on first use.
func (m *Manager) userLock(userID string) *sync.Mutex {
	v, _ := m.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// overTurnBudget atomically counts this turn against the user's daily budget
// and reports whether it exceeds the limit. Never read-then-write: duplicate
// or racing turns must not undercount.
func (m *Manager) overTurnBudget(userID string) bool {
	if m.maxTurnsPerDay <= 0 {
		return false
	}
	day := time.Now().UTC().Format("2006-01-02")
	if prev, _ := m.counterDay.Swap(day).(string); prev != day {
		m.pruneCounters(day)
	}
	v, _ := m.counters.LoadOrStore(userID+":"+day, new(atomic.Int64))
	count := v.(*atomic.Int64).Add(1)
	return count > m.maxTurnsPerDay
}

// pruneCounters drops counter entries from earlier days, so the map holds at
// most one key per user instead of growing by a key per user per day.
func (m *Manager) pruneCounters(day string) {
	suffix := ":" + day
	m.counters.Range(func(key, _ any) bool {
		if !strings.HasSuffix(key.(string), suffix) {
			m.counters.Delete(key)
		}
		return true
	})
}

// traceVerdicts records every guardrail verdict from the input pipeline,
// plus a degraded-mode entry when a classifier was unavailable.
func (m *Manager) traceVerdicts(ctx context.Context, userID string, check *guardrail.InputResult) {
	for _, v := range check.Verdicts {
		detail := map[string]any{
			"kind":      string(v.Kind),
			"triggered": v.Triggered,
			"rationale": v.Rationale,
		}
		if v.Kind == store.VerdictCrisis {
			detail["urgency_level"] = v.UrgencyLevel
		}
		if len(v.Redactions) > 0 {
			detail["redactions"] = v.Redactions
		}
		m.trace(ctx, &store.TraceEntry{
			UserID: userID,
			Stage:  "guardrail_input",
			Kind:   store.TraceGuardrailVerdict,
			Detail: detail,
		})
	}
	if check.Degraded {
		m.trace(ctx, &store.TraceEntry{
			UserID: userID,
			Stage:  "guardrail_input",
			Kind:   store.TraceDegradedMode,
			Detail: map[string]any{"note": "classifier unavailable, documented default applied"},
		})
	}
}

// trace appends an audit entry with a detached timeout context so auditing
// survives request cancellation.
func (m *Manager) trace(ctx context.Context, e *store.TraceEntry) {
	traceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.store.AppendTrace(traceCtx, e); err != nil {
		m.logger.Error("appending trace failed",
			"user_id", e.UserID,
			"kind", e.Kind,
			"error", err)
	}
}

// mergeFields copies non-empty extracted fields into the session, never
// overwriting a value the user gave directly.
func mergeFields(dst *store.IntakeFields, src *store.IntakeFields) {
	if dst.Contact == "" && src.Contact != "" {
		dst.Contact = src.Contact
	}
	if dst.Location == "" && src.Location != "" {
		dst.Location = src.Location
	}
	if dst.TreatmentType == "" && src.TreatmentType != "" {
		dst.TreatmentType = src.TreatmentType
	}
	if dst.PaymentMethod == "" && src.PaymentMethod != "" {
		dst.PaymentMethod = src.PaymentMethod
	}
	if dst.InsuranceProvider == "" && src.InsuranceProvider != "" {
		dst.InsuranceProvider = src.InsuranceProvider
	}
	if dst.SpecialConsiderations == "" && src.SpecialConsiderations != "" {
		dst.SpecialConsiderations = src.SpecialConsiderations
	}
}
