// ABOUTME: Triage coordinator - ordered intake field collection with bounded validation retries
// ABOUTME: Emits a bullet summary and a deterministic handoff once the final required field is captured

package triage

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/carenav/navigator/internal/specialist"
	"github.com/carenav/navigator/internal/store"
)

// maxFieldRetries is how many invalid answers are re-prompted before the
// field is stored as "unknown" and intake moves on. Intake must never block
// indefinitely on one field.
const maxFieldRetries = 2

// UnknownValue marks a field the user could not supply a valid answer for.
const UnknownValue = "unknown"

// field is one required intake field with its prompt and validator.
type field struct {
	name     string
	prompt   string
	validate func(answer string, fields *store.IntakeFields) bool
	set      func(answer string, fields *store.IntakeFields)
	// skip reports whether this field is not required given earlier answers
	skip func(fields *store.IntakeFields) bool
	get  func(fields *store.IntakeFields) string
}

// intakeFields is the fixed, ordered set of required intake fields.
var intakeFields = []field{
	{
		name:     "contact",
		prompt:   "To get started, what's the best way to reach you - a name with an email or phone number?",
		validate: func(a string, _ *store.IntakeFields) bool { return strings.TrimSpace(a) != "" },
		set:      func(a string, f *store.IntakeFields) { f.Contact = strings.TrimSpace(a) },
		get:      func(f *store.IntakeFields) string { return f.Contact },
	},
	{
		name:     "location",
		prompt:   "What city or area should I search in?",
		validate: func(a string, _ *store.IntakeFields) bool { return strings.TrimSpace(a) != "" },
		set:      func(a string, f *store.IntakeFields) { f.Location = strings.TrimSpace(a) },
		get:      func(f *store.IntakeFields) string { return f.Location },
	},
	{
		name:     "treatment_type",
		prompt:   "What kind of treatment are you looking for - for example outpatient, inpatient, detox, or counseling?",
		validate: func(a string, _ *store.IntakeFields) bool { return strings.TrimSpace(a) != "" },
		set:      func(a string, f *store.IntakeFields) { f.TreatmentType = strings.TrimSpace(a) },
		get:      func(f *store.IntakeFields) string { return f.TreatmentType },
	},
	{
		name:     "payment_method",
		prompt:   "How do you plan to pay - private insurance, Medicaid/Medicare, or out of pocket?",
		validate: func(a string, _ *store.IntakeFields) bool { return strings.TrimSpace(a) != "" },
		set:      func(a string, f *store.IntakeFields) { f.PaymentMethod = strings.TrimSpace(a) },
		get:      func(f *store.IntakeFields) string { return f.PaymentMethod },
	},
	{
		name:   "insurance_provider",
		prompt: "Who is your insurance provider? (for example Aetna, Cigna, Blue Cross)",
		validate: func(a string, _ *store.IntakeFields) bool {
			_, known := specialist.NormalizeProvider(a)
			return known
		},
		set:  func(a string, f *store.IntakeFields) { f.InsuranceProvider = strings.TrimSpace(a) },
		get:  func(f *store.IntakeFields) string { return f.InsuranceProvider },
		skip: func(f *store.IntakeFields) bool { return !paymentUsesInsurance(f.PaymentMethod) },
	},
}

// paymentUsesInsurance reports whether the payment method requires asking
// for an insurance provider. Medicaid and Medicare name their own program,
// so only private insurance needs the follow-up.
func paymentUsesInsurance(payment string) bool {
	lower := strings.ToLower(payment)
	if strings.Contains(lower, "medicaid") || strings.Contains(lower, "medicare") {
		return false
	}
	return strings.Contains(lower, "insurance") || strings.Contains(lower, "private")
}

// Result is the outcome of one triage turn.
type Result struct {
	Reply    string
	Complete bool             // all required fields are captured
	Handoff  *specialist.Kind // set when intake completed this turn
	Reason   string           // handoff reason
}

// Coordinator collects intake fields turn by turn. It mutates the passed
// IntakeFields in place; the caller persists the session.
type Coordinator struct {
	logger *slog.Logger

	mu      sync.Mutex
	retries map[string]int // userID -> consecutive invalid answers for the pending field
}

// NewCoordinator creates a coordinator. Pass nil logger for default.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger:  logger.With("component", "triage"),
		retries: make(map[string]int),
	}
}

// Complete reports whether every required field is captured.
func Complete(fields *store.IntakeFields) bool {
	return nextField(fields) == nil
}

// nextField returns the first required field that is still empty.
func nextField(fields *store.IntakeFields) *field {
	for i := range intakeFields {
		f := &intakeFields[i]
		if f.skip != nil && f.skip(fields) {
			continue
		}
		if f.get(fields) == "" {
			return f
		}
	}
	return nil
}

// FirstPrompt returns the opening intake question.
func (c *Coordinator) FirstPrompt(fields *store.IntakeFields) string {
	if f := nextField(fields); f != nil {
		return f.prompt
	}
	return ""
}

// Collect consumes one user answer. If intake is still incomplete, the reply
// asks for the next missing field. An invalid answer is re-prompted up to
// maxFieldRetries times, after which the field is stored as "unknown" rather
// than blocking the intake forever. When the final required field lands, the
// reply is a bullet summary and a handoff to the facility search specialist
// is issued.
func (c *Coordinator) Collect(userID string, fields *store.IntakeFields, answer string) *Result {
	current := nextField(fields)
	if current == nil {
		// Intake was already complete; nothing to collect.
		return &Result{Complete: true}
	}

	if !current.validate(answer, fields) {
		c.mu.Lock()
		c.retries[userID]++
		attempts := c.retries[userID]
		c.mu.Unlock()

		if attempts <= maxFieldRetries {
			c.logger.Info("intake answer invalid, re-prompting",
				"user_id", userID,
				"field", current.name,
				"attempt", attempts)
			return &Result{Reply: fmt.Sprintf("I didn't catch that. %s", current.prompt)}
		}

		// Retries exhausted: store the explicit unknown marker and move on.
		current.set(UnknownValue, fields)
		c.logger.Warn("intake field stored as unknown after retries",
			"user_id", userID,
			"field", current.name)
	} else {
		current.set(answer, fields)
	}

	c.mu.Lock()
	delete(c.retries, userID)
	c.mu.Unlock()

	if next := nextField(fields); next != nil {
		return &Result{Reply: next.prompt}
	}

	// Final field captured: summary plus handoff.
	kind := specialist.KindFacilitySearch
	return &Result{
		Reply:    Summary(fields),
		Complete: true,
		Handoff:  &kind,
		Reason:   "intake complete",
	}
}

// Summary renders the captured intake as a bullet-point confirmation.
func Summary(fields *store.IntakeFields) string {
	var b strings.Builder
	b.WriteString("Thanks - here's what I have:\n")
	b.WriteString("- Contact: " + fields.Contact + "\n")
	b.WriteString("- Location: " + fields.Location + "\n")
	b.WriteString("- Treatment type: " + fields.TreatmentType + "\n")
	b.WriteString("- Payment: " + fields.PaymentMethod + "\n")
	if fields.InsuranceProvider != "" {
		b.WriteString("- Insurance provider: " + fields.InsuranceProvider + "\n")
	}
	if fields.SpecialConsiderations != "" {
		b.WriteString("- Special considerations: " + fields.SpecialConsiderations + "\n")
	}
	b.WriteString("\nI'll start looking for facilities that match.")
	return b.String()
}
