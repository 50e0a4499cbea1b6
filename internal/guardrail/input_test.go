// ABOUTME: Tests for the input guardrail pipeline ordering and short-circuits
// ABOUTME: Covers crisis fail-safe, privacy redaction, topic fail-open, verdict recording

package guardrail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carenav/navigator/internal/classify"
	"github.com/carenav/navigator/internal/store"
)

// fakeClassifier returns scripted assessments or errors.
type fakeClassifier struct {
	crisis    *classify.CrisisAssessment
	crisisErr error
	topic     *classify.TopicAssessment
	topicErr  error
	safety    *classify.SafetyAssessment
	safetyErr error
}

func (f *fakeClassifier) AssessCrisis(_ context.Context, _ string) (*classify.CrisisAssessment, error) {
	if f.crisisErr != nil {
		return nil, f.crisisErr
	}
	if f.crisis == nil {
		return &classify.CrisisAssessment{UrgencyLevel: 1, Rationale: "calm"}, nil
	}
	return f.crisis, nil
}

func (f *fakeClassifier) AssessTopic(_ context.Context, _ string) (*classify.TopicAssessment, error) {
	if f.topicErr != nil {
		return nil, f.topicErr
	}
	if f.topic == nil {
		return &classify.TopicAssessment{OnTopic: true, Rationale: "on topic"}, nil
	}
	return f.topic, nil
}

func (f *fakeClassifier) AssessResponseSafety(_ context.Context, _ string) (*classify.SafetyAssessment, error) {
	if f.safetyErr != nil {
		return nil, f.safetyErr
	}
	if f.safety == nil {
		return &classify.SafetyAssessment{Safe: true, Rationale: "clean"}, nil
	}
	return f.safety, nil
}

func TestInputPipeline_CrisisShortCircuits(t *testing.T) {
	p := NewInputPipeline(&fakeClassifier{
		crisis: &classify.CrisisAssessment{UrgencyLevel: 5, Rationale: "self-harm intent"},
	}, time.Second, nil)

	res := p.Check(t.Context(), "user-1", "I want to hurt myself")

	require.True(t, res.ShortCircuit)
	assert.True(t, res.CrisisTriggered)
	assert.Contains(t, res.Reply, "988")
	assert.Contains(t, res.Reply, "741741")

	require.NotEmpty(t, res.Verdicts)
	crisis := res.Verdicts[0]
	assert.Equal(t, store.VerdictCrisis, crisis.Kind)
	assert.True(t, crisis.Triggered)
	assert.GreaterOrEqual(t, crisis.UrgencyLevel, 4)
}

func TestInputPipeline_CrisisBelowThresholdProceeds(t *testing.T) {
	p := NewInputPipeline(&fakeClassifier{
		crisis: &classify.CrisisAssessment{UrgencyLevel: 3, Rationale: "distress, no intent"},
	}, time.Second, nil)

	res := p.Check(t.Context(), "user-1", "I'm struggling but looking for treatment")

	assert.False(t, res.ShortCircuit)
	assert.False(t, res.CrisisTriggered)
	// Crisis verdict is still recorded even when not triggered.
	assert.Equal(t, store.VerdictCrisis, res.Verdicts[0].Kind)
	assert.Equal(t, 3, res.Verdicts[0].UrgencyLevel)
}

func TestInputPipeline_CrisisClassifierFailureFailsSafe(t *testing.T) {
	p := NewInputPipeline(&fakeClassifier{
		crisisErr: errors.New("deadline exceeded"),
	}, 10*time.Millisecond, nil)

	res := p.Check(t.Context(), "user-1", "hello there")

	require.True(t, res.ShortCircuit, "unclassifiable message must be treated as potentially triggered")
	assert.True(t, res.CrisisTriggered)
	assert.True(t, res.Degraded)
	assert.Contains(t, res.Reply, "988")
}

func TestInputPipeline_LexiconFloorAppliesWhenClassifierDown(t *testing.T) {
	p := NewInputPipeline(&fakeClassifier{
		crisisErr: errors.New("unavailable"),
	}, 10*time.Millisecond, nil)

	res := p.Check(t.Context(), "user-1", "I want to kill myself")

	require.True(t, res.CrisisTriggered)
	assert.Equal(t, 5, res.Verdicts[0].UrgencyLevel, "lexicon floor must override the fail-safe default")
}

func TestInputPipeline_TopicClassifierFailureFailsOpen(t *testing.T) {
	p := NewInputPipeline(&fakeClassifier{
		topicErr: errors.New("unavailable"),
	}, 10*time.Millisecond, nil)

	res := p.Check(t.Context(), "user-1", "any message at all")

	assert.False(t, res.ShortCircuit, "topic failure must permit the message through")
	assert.True(t, res.Degraded)
}

func TestInputPipeline_OffTopicShortCircuits(t *testing.T) {
	p := NewInputPipeline(&fakeClassifier{
		topic: &classify.TopicAssessment{OnTopic: false, Rationale: "homework request"},
	}, time.Second, nil)

	res := p.Check(t.Context(), "user-1", "Help with my math homework")

	require.True(t, res.ShortCircuit)
	assert.False(t, res.CrisisTriggered)
	assert.Equal(t, OffTopicReply, res.Reply)
}

func TestInputPipeline_RedactionBeforeTopicCheck(t *testing.T) {
	var sawMessage string
	cls := &topicCapture{saw: &sawMessage}
	p := NewInputPipeline(cls, time.Second, nil)

	res := p.Check(t.Context(), "user-1", "I need rehab, reach me at jo@example.com")

	assert.False(t, res.ShortCircuit)
	assert.Contains(t, res.Redacted, "[REDACTED-EMAIL]")
	assert.NotContains(t, sawMessage, "jo@example.com", "topic filter must only see redacted text")

	var privacy *store.Verdict
	for i := range res.Verdicts {
		if res.Verdicts[i].Kind == store.VerdictPrivacy {
			privacy = &res.Verdicts[i]
		}
	}
	require.NotNil(t, privacy)
	assert.True(t, privacy.Triggered)
	assert.NotEmpty(t, privacy.Redactions)
}

func TestInputPipeline_CrisisMessageStillRedacted(t *testing.T) {
	p := NewInputPipeline(&fakeClassifier{
		crisis: &classify.CrisisAssessment{UrgencyLevel: 5, Rationale: "intent"},
	}, time.Second, nil)

	res := p.Check(t.Context(), "user-1", "I want to hurt myself, my SSN is 123-45-6789")

	require.True(t, res.CrisisTriggered)
	assert.NotContains(t, res.Redacted, "123-45-6789")
	assert.True(t, strings.Contains(res.Redacted, "[REDACTED-ID]"))
}

// topicCapture records the message the topic assessor was shown.
type topicCapture struct {
	fakeClassifier
	saw *string
}

func (c *topicCapture) AssessTopic(ctx context.Context, message string) (*classify.TopicAssessment, error) {
	*c.saw = message
	return &classify.TopicAssessment{OnTopic: true, Rationale: "on topic"}, nil
}
