// ABOUTME: Output guardrail - response safety validator with bounded regeneration
// ABOUTME: Unsafe replies get regeneration attempts, then a safe templated substitute

package guardrail

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/carenav/navigator/internal/classify"
	"github.com/carenav/navigator/internal/store"
)

// DefaultMaxRegenerations is how many times the producing component is asked
// for a new reply before the templated substitute is used.
const DefaultMaxRegenerations = 2

// requiredCrisisStrings are the contact strings a crisis response must
// contain to be considered adequate.
var requiredCrisisStrings = []string{"988"}

// RegenerateFunc asks the producing component for a replacement reply.
// attempt is 1-based.
type RegenerateFunc func(ctx context.Context, attempt int) (string, error)

// OutputResult is the outcome of validating a reply.
type OutputResult struct {
	Reply       string // the reply that is safe to send (possibly regenerated or substituted)
	Verdict     store.Verdict
	Regenerated int  // how many regeneration attempts were consumed
	Substituted bool // true when the templated substitute replaced the reply
}

// OutputValidator inspects every specialist- or triage-produced reply before
// it reaches the user.
type OutputValidator struct {
	classifier classify.Classifier
	timeout    time.Duration
	maxRegen   int
	logger     *slog.Logger
}

// NewOutputValidator creates a validator. Pass nil logger for default.
func NewOutputValidator(classifier classify.Classifier, timeout time.Duration, maxRegen int, logger *slog.Logger) *OutputValidator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultClassifyTimeout
	}
	if maxRegen <= 0 {
		maxRegen = DefaultMaxRegenerations
	}
	return &OutputValidator{
		classifier: classifier,
		timeout:    timeout,
		maxRegen:   maxRegen,
		logger:     logger.With("component", "guardrail_output"),
	}
}

// Validate checks a reply for disallowed content. requireCrisisResources
// marks turns where an adequate crisis response is mandatory (the reply must
// carry the designated contact strings). On trigger, regen is invoked up to
// the configured number of times; if every attempt fails validation the
// templated substitute is returned.
func (v *OutputValidator) Validate(ctx context.Context, userID, reply string, requireCrisisResources bool, regen RegenerateFunc) *OutputResult {
	res := &OutputResult{Reply: reply}

	candidate := reply
	for attempt := 0; ; attempt++ {
		reason, safe := v.check(ctx, candidate, requireCrisisResources)
		if safe {
			res.Reply = candidate
			res.Verdict = store.Verdict{
				Kind:      store.VerdictResponseSafety,
				Triggered: attempt > 0,
				Rationale: reason,
			}
			res.Regenerated = attempt
			if attempt > 0 {
				v.logger.Info("reply accepted after regeneration",
					"user_id", userID,
					"attempts", attempt)
			}
			return res
		}

		v.logger.Warn("response safety tripped",
			"user_id", userID,
			"attempt", attempt,
			"rationale", reason)

		if attempt >= v.maxRegen || regen == nil {
			break
		}
		next, err := regen(ctx, attempt+1)
		if err != nil {
			v.logger.Error("regeneration failed", "user_id", userID, "error", err)
			break
		}
		candidate = next
		res.Regenerated = attempt + 1
	}

	// Attempts exhausted: substitute the templated safe message.
	res.Reply = UnsafeReplySubstitute
	if requireCrisisResources {
		res.Reply = CrisisReply
	}
	res.Substituted = true
	res.Verdict = store.Verdict{
		Kind:      store.VerdictResponseSafety,
		Triggered: true,
		Rationale: "regeneration attempts exhausted, substituted templated reply",
	}
	return res
}

// check runs the lexicon scan, the crisis-adequacy check, and the model
// classifier. The lexicon verdict stands on its own: if the classifier is
// unavailable the validator degrades to lexicon-only rather than blocking.
func (v *OutputValidator) check(ctx context.Context, reply string, requireCrisisResources bool) (string, bool) {
	if requireCrisisResources {
		for _, s := range requiredCrisisStrings {
			if !strings.Contains(reply, s) {
				return "inadequate crisis response: missing required resource contact", false
			}
		}
	}

	lex := classify.NewLexiconClassifier()
	if assessment, _ := lex.AssessResponseSafety(ctx, reply); !assessment.Safe {
		return assessment.Rationale, false
	}

	cctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	assessment, err := v.classifier.AssessResponseSafety(cctx, reply)
	if err != nil {
		v.logger.Warn("safety classifier unavailable, using lexicon verdict only", "error", err)
		return "lexicon-only check passed (classifier unavailable)", true
	}
	if !assessment.Safe {
		return assessment.Rationale, false
	}
	return assessment.Rationale, true
}
