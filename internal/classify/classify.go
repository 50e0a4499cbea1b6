// ABOUTME: Classification capability boundary - crisis urgency, topic relevance, response safety
// ABOUTME: Defines the Classifier interface consumed by the guardrail pipeline

package classify

import "context"

// CrisisAssessment is the result of crisis classification.
type CrisisAssessment struct {
	UrgencyLevel int    `json:"urgency_level"` // 1-5
	Rationale    string `json:"rationale"`
}

// TopicAssessment is the result of topic-relevance classification.
type TopicAssessment struct {
	OnTopic   bool   `json:"on_topic"`
	Rationale string `json:"rationale"`
}

// SafetyAssessment is the result of response-safety classification.
type SafetyAssessment struct {
	Safe      bool   `json:"safe"`
	Rationale string `json:"rationale"`
}

// Classifier is the narrow boundary to the external classification
// capability. Calls are blocking and must respect ctx deadlines; the
// guardrail pipeline applies its fail-safe/fail-open policy on error.
type Classifier interface {
	AssessCrisis(ctx context.Context, message string) (*CrisisAssessment, error)
	AssessTopic(ctx context.Context, message string) (*TopicAssessment, error)
	AssessResponseSafety(ctx context.Context, reply string) (*SafetyAssessment, error)
}

// clampUrgency forces a value into the 1-5 urgency scale.
func clampUrgency(level int) int {
	if level < 1 {
		return 1
	}
	if level > 5 {
		return 5
	}
	return level
}
