// ABOUTME: Tests for the response-safety validator and bounded regeneration
// ABOUTME: Covers pass-through, regeneration, substitution, and crisis adequacy

package guardrail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carenav/navigator/internal/classify"
	"github.com/carenav/navigator/internal/store"
)

func TestOutputValidator_SafeReplyPassesThrough(t *testing.T) {
	v := NewOutputValidator(&fakeClassifier{}, time.Second, 2, nil)

	res := v.Validate(t.Context(), "user-1", "Here are three outpatient programs near you.", false, nil)

	assert.Equal(t, "Here are three outpatient programs near you.", res.Reply)
	assert.False(t, res.Verdict.Triggered)
	assert.False(t, res.Substituted)
	assert.Zero(t, res.Regenerated)
}

func TestOutputValidator_UnsafeReplyRegenerated(t *testing.T) {
	v := NewOutputValidator(&fakeClassifier{}, time.Second, 2, nil)

	regen := func(_ context.Context, attempt int) (string, error) {
		return "A clinician can adjust your medication safely.", nil
	}

	res := v.Validate(t.Context(), "user-1", "You should stop taking your meds.", false, regen)

	assert.Equal(t, "A clinician can adjust your medication safely.", res.Reply)
	assert.Equal(t, 1, res.Regenerated)
	assert.True(t, res.Verdict.Triggered)
	assert.False(t, res.Substituted)
}

func TestOutputValidator_SubstitutesAfterExhaustedRegens(t *testing.T) {
	v := NewOutputValidator(&fakeClassifier{}, time.Second, 2, nil)

	attempts := 0
	regen := func(_ context.Context, attempt int) (string, error) {
		attempts++
		return "your diagnosis is severe dependence", nil // still unsafe
	}

	res := v.Validate(t.Context(), "user-1", "i diagnose you with addiction", false, regen)

	assert.Equal(t, 2, attempts, "regeneration must stop at the configured bound")
	assert.Equal(t, UnsafeReplySubstitute, res.Reply)
	assert.True(t, res.Substituted)
	assert.True(t, res.Verdict.Triggered)
	assert.Equal(t, store.VerdictResponseSafety, res.Verdict.Kind)
}

func TestOutputValidator_CrisisReplyMustCarryResources(t *testing.T) {
	v := NewOutputValidator(&fakeClassifier{}, time.Second, 1, nil)

	res := v.Validate(t.Context(), "user-1", "Please take care of yourself.", true, nil)

	require.True(t, res.Substituted)
	assert.Contains(t, res.Reply, "988", "crisis substitute must carry the required resource contact")
}

func TestOutputValidator_AdequateCrisisReplyAccepted(t *testing.T) {
	v := NewOutputValidator(&fakeClassifier{}, time.Second, 1, nil)

	reply := "You can call or text 988 any time, day or night."
	res := v.Validate(t.Context(), "user-1", reply, true, nil)

	assert.Equal(t, reply, res.Reply)
	assert.False(t, res.Substituted)
}

func TestOutputValidator_ClassifierFailureDegradesToLexicon(t *testing.T) {
	v := NewOutputValidator(&fakeClassifier{
		safetyErr: errors.New("unavailable"),
	}, 10*time.Millisecond, 1, nil)

	// Lexicon-clean reply passes even with the model down.
	res := v.Validate(t.Context(), "user-1", "Here is a counseling option.", false, nil)
	assert.False(t, res.Substituted)

	// Lexicon-unsafe reply is still caught without the model.
	res = v.Validate(t.Context(), "user-1", "stop your medication today", false, nil)
	assert.True(t, res.Substituted)
}

func TestOutputValidator_ModelUnsafeVerdictHonored(t *testing.T) {
	v := NewOutputValidator(&fakeClassifier{
		safety: &classify.SafetyAssessment{Safe: false, Rationale: "prescriptive advice"},
	}, time.Second, 1, nil)

	res := v.Validate(t.Context(), "user-1", "Sounds fine to me.", false, nil)

	assert.True(t, res.Substituted)
	assert.Equal(t, UnsafeReplySubstitute, res.Reply)
}

func TestOutputValidator_RegenerationErrorFallsToSubstitute(t *testing.T) {
	v := NewOutputValidator(&fakeClassifier{}, time.Second, 3, nil)

	regen := func(_ context.Context, _ int) (string, error) {
		return "", errors.New("producer unavailable")
	}

	res := v.Validate(t.Context(), "user-1", "i diagnose you", false, regen)

	assert.True(t, res.Substituted)
}
