// ABOUTME: Input guardrail pipeline - crisis check, privacy redaction, topic relevance, in that fixed order
// ABOUTME: Crisis fails safe on classifier timeout, topic fails open; verdicts are values, never errors

package guardrail

import (
	"context"
	"log/slog"
	"time"

	"github.com/carenav/navigator/internal/classify"
	"github.com/carenav/navigator/internal/store"
)

// crisisThreshold is the urgency level at and above which the crisis
// guardrail trips and the turn short-circuits.
const crisisThreshold = 4

// failSafeUrgency is the urgency assumed when the crisis classifier is
// unavailable. It sits exactly at the threshold: an unclassifiable message
// is treated as potentially triggered.
const failSafeUrgency = crisisThreshold

// DefaultClassifyTimeout bounds each external classification call.
const DefaultClassifyTimeout = 5 * time.Second

// InputResult is the outcome of running a message through the input
// pipeline. When ShortCircuit is set the turn stops here: Reply carries the
// templated response and no specialist may be invoked.
type InputResult struct {
	Redacted        string // message after privacy redaction
	Verdicts        []store.Verdict
	ShortCircuit    bool
	Reply           string
	CrisisTriggered bool
	Degraded        bool // a classifier was unavailable and a fail-safe/fail-open default applied
}

// InputPipeline runs the three input guardrails in safety-first order.
type InputPipeline struct {
	classifier classify.Classifier
	timeout    time.Duration
	logger     *slog.Logger
}

// NewInputPipeline creates an input pipeline. Pass nil logger for default.
func NewInputPipeline(classifier classify.Classifier, timeout time.Duration, logger *slog.Logger) *InputPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultClassifyTimeout
	}
	return &InputPipeline{
		classifier: classifier,
		timeout:    timeout,
		logger:     logger.With("component", "guardrail_input"),
	}
}

// Check runs crisis -> privacy -> topic against a user message. The order is
// fixed: a crisis verdict must be reached before anything else can divert
// the turn, and the topic filter only ever sees redacted text.
func (p *InputPipeline) Check(ctx context.Context, userID, message string) *InputResult {
	res := &InputResult{Redacted: message}

	// 1. Crisis detection. Classifier unavailability fails SAFE: the
	// message is treated as potentially triggered.
	crisis := p.assessCrisis(ctx, message, res)
	res.Verdicts = append(res.Verdicts, crisis)
	if crisis.Triggered {
		// Still redact what gets persisted: a crisis message may carry
		// identifiers the store must never hold.
		redacted, labels := Redact(message)
		res.Redacted = redacted
		if len(labels) > 0 {
			res.Verdicts = append(res.Verdicts, store.Verdict{
				Kind:       store.VerdictPrivacy,
				Triggered:  true,
				Rationale:  "identifier patterns replaced with placeholders",
				Redactions: labels,
			})
		}
		res.ShortCircuit = true
		res.CrisisTriggered = true
		res.Reply = CrisisReply
		p.logger.Warn("crisis guardrail tripped",
			"user_id", userID,
			"urgency_level", crisis.UrgencyLevel,
			"rationale", crisis.Rationale)
		return res
	}

	// 2. Privacy redaction. A transform, never a block.
	redacted, labels := Redact(message)
	res.Redacted = redacted
	res.Verdicts = append(res.Verdicts, store.Verdict{
		Kind:       store.VerdictPrivacy,
		Triggered:  len(labels) > 0,
		Rationale:  "identifier patterns replaced with placeholders",
		Redactions: labels,
	})
	if len(labels) > 0 {
		p.logger.Info("privacy redaction applied",
			"user_id", userID,
			"redactions", labels)
	}

	// 3. Topic relevance, on the redacted text. Classifier unavailability
	// fails OPEN: the message is permitted through.
	topic := p.assessTopic(ctx, redacted, res)
	res.Verdicts = append(res.Verdicts, topic)
	if topic.Triggered {
		res.ShortCircuit = true
		res.Reply = OffTopicReply
		p.logger.Info("topic guardrail tripped",
			"user_id", userID,
			"rationale", topic.Rationale)
	}

	return res
}

func (p *InputPipeline) assessCrisis(ctx context.Context, message string, res *InputResult) store.Verdict {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	assessment, err := p.classifier.AssessCrisis(cctx, message)
	if err != nil {
		// Fail safe. The lexicon floor can still push urgency above the
		// fail-safe default.
		level := failSafeUrgency
		if floor, _ := classify.CrisisFloor(message); floor > level {
			level = floor
		}
		res.Degraded = true
		p.logger.Error("crisis classifier unavailable, failing safe",
			"error", err,
			"assumed_urgency", level)
		return store.Verdict{
			Kind:         store.VerdictCrisis,
			Triggered:    level >= crisisThreshold,
			UrgencyLevel: level,
			Rationale:    "classifier unavailable, failed safe",
		}
	}

	return store.Verdict{
		Kind:         store.VerdictCrisis,
		Triggered:    assessment.UrgencyLevel >= crisisThreshold,
		UrgencyLevel: assessment.UrgencyLevel,
		Rationale:    assessment.Rationale,
	}
}

func (p *InputPipeline) assessTopic(ctx context.Context, message string, res *InputResult) store.Verdict {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	assessment, err := p.classifier.AssessTopic(cctx, message)
	if err != nil {
		// Fail open: an unclassifiable message is permitted through.
		res.Degraded = true
		p.logger.Error("topic classifier unavailable, failing open", "error", err)
		return store.Verdict{
			Kind:      store.VerdictTopic,
			Triggered: false,
			Rationale: "classifier unavailable, failed open",
		}
	}

	return store.Verdict{
		Kind:      store.VerdictTopic,
		Triggered: !assessment.OnTopic,
		Rationale: assessment.Rationale,
	}
}
