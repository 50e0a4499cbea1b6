// ABOUTME: Handoff router - deterministic intent-to-specialist mapping and bounded context filtering
// ABOUTME: Filtered context is at most K matching turns plus structured fields, regardless of history length

package triage

import (
	"strings"

	"github.com/carenav/navigator/internal/specialist"
	"github.com/carenav/navigator/internal/store"
)

// DefaultContextTurns is K: the maximum number of history turns a specialist
// may see. The bound is independent of total history length.
const DefaultContextTurns = 5

// intentRules maps message signals to specialists in priority order. The
// first matching rule wins; there is exactly one specialist per intent and
// no other dispatch path.
var intentRules = []struct {
	kind     specialist.Kind
	keywords []string
}{
	{specialist.KindInsurance, []string{"insurance", "coverage", "covered", "copay", "deductible", "in-network", "in network"}},
	{specialist.KindScheduling, []string{"appointment", "schedule", "book", "reschedule", "visit"}},
	{specialist.KindIntakeForm, []string{"form", "paperwork", "document", "upload", "fill out", "fill in"}},
	{specialist.KindReminder, []string{"remind", "reminder", "follow up", "follow-up", "check in on me"}},
	{specialist.KindCommunication, []string{"send a message", "send an email", "email them", "contact them", "reach out to"}},
	{specialist.KindFacilitySearch, []string{"facility", "facilities", "search", "find", "program", "rehab", "detox", "treatment", "near me", "options"}},
}

// DetectIntent maps a message to exactly one specialist. Messages with no
// recognizable intent default to facility search - the assistant's core
// task.
func DetectIntent(message string) specialist.Kind {
	lower := strings.ToLower(message)
	for _, rule := range intentRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.kind
			}
		}
	}
	return specialist.KindFacilitySearch
}

// FilterContext selects the most recent maxTurns turns whose content matches
// the specialist's keyword set, preserving chronological order. The result
// is the bounded context view: its size never depends on total history
// length, and structured fields travel separately on the request.
func FilterContext(turns []*store.Turn, kind specialist.Kind, maxTurns int) []*store.Turn {
	if maxTurns <= 0 {
		maxTurns = DefaultContextTurns
	}
	keywords := specialist.ContextKeywords(kind)

	// Walk newest-first collecting matches, then restore order.
	matched := make([]*store.Turn, 0, maxTurns)
	for i := len(turns) - 1; i >= 0 && len(matched) < maxTurns; i-- {
		if turnMatches(turns[i], keywords) {
			matched = append(matched, turns[i])
		}
	}

	out := make([]*store.Turn, 0, len(matched))
	for i := len(matched) - 1; i >= 0; i-- {
		out = append(out, matched[i])
	}
	return out
}

func turnMatches(turn *store.Turn, keywords []string) bool {
	lower := strings.ToLower(turn.Content)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
