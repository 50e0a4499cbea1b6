// ABOUTME: Deterministic keyword lexicon scorer for crisis, topic, and response safety
// ABOUTME: Used standalone in tests and as a floor signal blended with the model classifier

package classify

import (
	"context"
	"strings"
)

// crisisLexicon maps phrase signals to urgency floors. A matched phrase
// forces the urgency to at least its floor regardless of what the model
// classifier returns.
var crisisLexicon = map[string]int{
	"kill myself":        5,
	"hurt myself":        5,
	"end my life":        5,
	"suicide":            5,
	"suicidal":           5,
	"want to die":        5,
	"overdose right now": 5,
	"self-harm":          4,
	"self harm":          4,
	"hurting myself":     4,
	"can't go on":        4,
	"cant go on":         4,
	"no reason to live":  4,
	"hopeless":           3,
	"relapse":            2,
}

// topicLexicon lists terms that indicate a treatment-seeking message.
var topicLexicon = []string{
	"treatment", "rehab", "detox", "recovery", "sober", "sobriety",
	"addiction", "substance", "outpatient", "inpatient", "counseling",
	"therapy", "therapist", "facility", "program", "insurance",
	"medication", "withdrawal", "clinic", "appointment", "intake",
	"aa ", "na ", "meeting",
}

// unsafeReplyLexicon lists phrases a specialist reply must never contain:
// explicit diagnosis or prescriptive medical advice.
var unsafeReplyLexicon = []string{
	"you have been diagnosed",
	"i diagnose",
	"your diagnosis is",
	"you should stop taking",
	"stop your medication",
	"increase your dose",
	"you don't need a doctor",
	"you do not need a doctor",
	"instead of seeing a doctor",
}

// LexiconClassifier scores messages with keyword lexicons only. It is
// deterministic and has no external dependency, which makes it both the
// test double and the floor signal the guardrails blend with the model.
type LexiconClassifier struct{}

// NewLexiconClassifier creates a lexicon-only classifier.
func NewLexiconClassifier() *LexiconClassifier {
	return &LexiconClassifier{}
}

// AssessCrisis returns the highest urgency floor matched by the message.
func (l *LexiconClassifier) AssessCrisis(_ context.Context, message string) (*CrisisAssessment, error) {
	level, phrase := CrisisFloor(message)
	rationale := "no crisis signal matched"
	if phrase != "" {
		rationale = "matched signal phrase"
	}
	return &CrisisAssessment{UrgencyLevel: level, Rationale: rationale}, nil
}

// AssessTopic reports whether any treatment-seeking term appears.
func (l *LexiconClassifier) AssessTopic(_ context.Context, message string) (*TopicAssessment, error) {
	lower := strings.ToLower(message)
	for _, term := range topicLexicon {
		if strings.Contains(lower, term) {
			return &TopicAssessment{OnTopic: true, Rationale: "matched treatment term"}, nil
		}
	}
	return &TopicAssessment{OnTopic: false, Rationale: "no treatment term matched"}, nil
}

// AssessResponseSafety reports whether the reply matches the unsafe lexicon.
func (l *LexiconClassifier) AssessResponseSafety(_ context.Context, reply string) (*SafetyAssessment, error) {
	lower := strings.ToLower(reply)
	for _, phrase := range unsafeReplyLexicon {
		if strings.Contains(lower, phrase) {
			return &SafetyAssessment{Safe: false, Rationale: "matched unsafe phrase"}, nil
		}
	}
	return &SafetyAssessment{Safe: true, Rationale: "no unsafe phrase matched"}, nil
}

// CrisisFloor returns the urgency floor for a message based on the crisis
// lexicon, along with the phrase that set it. Returns (1, "") when nothing
// matches.
func CrisisFloor(message string) (int, string) {
	lower := strings.ToLower(message)
	level := 1
	matched := ""
	for phrase, floor := range crisisLexicon {
		if strings.Contains(lower, phrase) && floor > level {
			level = floor
			matched = phrase
		}
	}
	return level, matched
}
