// ABOUTME: Privacy/PII detector - redacts identifier patterns while preserving contextual words
// ABOUTME: Redaction is a transform, never a block; redacted text replaces the original everywhere downstream

package guardrail

import "regexp"

// redaction pairs a pattern with the placeholder that replaces its matches.
type redaction struct {
	label   string
	pattern *regexp.Regexp
	replace string
}

// Order matters: street addresses and phone numbers are matched before
// bare digit groups so a longer span wins over a partial one.
var redactions = []redaction{
	{
		label:   "address",
		pattern: regexp.MustCompile(`(?i)\b\d{1,5}\s+(?:[A-Za-z]+\s+)*[A-Za-z]+\s+(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|way|place|pl)\b\.?`),
		replace: "[REDACTED-ADDRESS]",
	},
	{
		label:   "email",
		pattern: regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`),
		replace: "[REDACTED-EMAIL]",
	},
	{
		label:   "phone",
		pattern: regexp.MustCompile(`\b(?:\+?1[-.\s]?)?(?:\(\d{3}\)\s?|\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`),
		replace: "[REDACTED-PHONE]",
	},
	{
		label:   "id",
		pattern: regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`),
		replace: "[REDACTED-ID]",
	},
}

// Redact replaces identifier patterns (SSN-like digit groups, phone
// numbers, emails, street addresses) with placeholders. Contextual words -
// treatment type, symptoms, city-level location - are left untouched.
// Returns the redacted text and the labels of the patterns that fired.
func Redact(text string) (string, []string) {
	var labels []string
	out := text
	for _, r := range redactions {
		if !r.pattern.MatchString(out) {
			continue
		}
		out = r.pattern.ReplaceAllString(out, r.replace)
		labels = append(labels, r.label)
	}
	return out, labels
}
