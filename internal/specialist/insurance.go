// ABOUTME: Insurance verification specialist - synchronous coverage check against known providers
// ABOUTME: Internal failure surfaces as a safe fallback via the registry, never a raw error

package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// KnownProviders maps normalized provider names to coverage notes for
// substance-abuse treatment. Triage uses the key set to validate the
// insurance_provider intake field.
var KnownProviders = map[string]string{
	"aetna":            "typically covers inpatient and outpatient substance-abuse treatment; prior authorization is often required for residential programs",
	"cigna":            "covers most outpatient programs; inpatient coverage varies by plan tier",
	"united":           "covers outpatient and intensive outpatient programs; check plan documents for residential coverage",
	"unitedhealthcare": "covers outpatient and intensive outpatient programs; check plan documents for residential coverage",
	"anthem":           "covers medically necessary treatment; pre-certification required for inpatient stays",
	"blue cross":       "coverage varies by state plan; most cover outpatient counseling and medication-assisted treatment",
	"blue shield":      "coverage varies by state plan; most cover outpatient counseling and medication-assisted treatment",
	"kaiser":           "covers treatment within the Kaiser network; referral from a Kaiser physician is usually the first step",
	"humana":           "covers outpatient treatment broadly; inpatient benefits depend on the plan",
	"medicaid":         "covers substance-abuse treatment in all states; accepted facilities vary, so confirm when scheduling",
	"medicare":         "Part A covers inpatient treatment, Part B covers outpatient services including counseling",
}

// NormalizeProvider lowercases and trims a provider name and reports
// whether it is in the known-provider set.
func NormalizeProvider(name string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	for known := range KnownProviders {
		if strings.Contains(n, known) {
			return known, true
		}
	}
	return n, false
}

// InsuranceVerifier answers coverage questions from the known-provider table.
type InsuranceVerifier struct {
	logger *slog.Logger
}

// NewInsuranceVerifier creates the insurance verification specialist.
func NewInsuranceVerifier(logger *slog.Logger) *InsuranceVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsuranceVerifier{logger: logger.With("component", "insurance")}
}

// Handle reports coverage notes for the provider on file.
func (v *InsuranceVerifier) Handle(ctx context.Context, req *Request) (*Reply, error) {
	provider := req.Fields.InsuranceProvider
	if provider == "" || provider == "unknown" {
		return &Reply{
			Text: "I don't have an insurance provider on file for you yet. If you tell me who your insurance is with (for example Aetna, Cigna, or Medicaid), I can check what treatment they typically cover. If you're paying out of pocket, many facilities offer sliding-scale fees.",
		}, nil
	}

	normalized, known := NormalizeProvider(provider)
	if !known {
		return &Reply{
			Text: fmt.Sprintf("I don't have coverage details for %q on hand. The most reliable check is the member services number on the back of your insurance card - ask about \"substance use disorder benefits\". I can still search for facilities and note which ones accept your plan.", provider),
		}, nil
	}

	notes := KnownProviders[normalized]
	v.logger.Info("coverage check", "user_id", req.UserID, "provider", normalized)
	return &Reply{
		Text: fmt.Sprintf("Good news - %s %s. When we pick a facility I can note your plan so they verify your exact benefits before your first visit.", titleCase(normalized), notes),
	}, nil
}

// titleCase capitalizes the first letter of each word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
