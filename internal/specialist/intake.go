// ABOUTME: Intake-form help specialist - extracts structured fields from pasted document text
// ABOUTME: Consumes the extraction capability's output as-is and proposes session field updates

package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/carenav/navigator/internal/extract"
)

// IntakeFormHelper fills intake fields from document text the user provides.
type IntakeFormHelper struct {
	extractor extract.Extractor
	logger    *slog.Logger
}

// NewIntakeFormHelper creates the intake-form specialist.
func NewIntakeFormHelper(extractor extract.Extractor, logger *slog.Logger) *IntakeFormHelper {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntakeFormHelper{
		extractor: extractor,
		logger:    logger.With("component", "intake_form"),
	}
}

// Handle runs field extraction over the message text and reports what was
// found. Extracted fields ride back on the reply for the session manager to
// merge - the specialist itself never touches the session.
func (h *IntakeFormHelper) Handle(ctx context.Context, req *Request) (*Reply, error) {
	if h.extractor == nil {
		return nil, fmt.Errorf("extraction not configured")
	}

	fields, err := h.extractor.ExtractIntakeFields(ctx, req.Message)
	if err != nil {
		return nil, fmt.Errorf("extracting intake fields: %w", err)
	}

	var found []string
	if fields.Contact != "" {
		found = append(found, "contact information")
	}
	if fields.Location != "" {
		found = append(found, "location")
	}
	if fields.TreatmentType != "" {
		found = append(found, "treatment type")
	}
	if fields.PaymentMethod != "" {
		found = append(found, "payment method")
	}
	if fields.InsuranceProvider != "" {
		found = append(found, "insurance provider")
	}
	if fields.SpecialConsiderations != "" {
		found = append(found, "special considerations")
	}

	if len(found) == 0 {
		return &Reply{
			Text: "I looked through that but couldn't pick out any intake details. You can tell me directly - for example your location, the kind of treatment you're looking for, or how you plan to pay.",
		}, nil
	}

	h.logger.Info("intake fields extracted",
		"user_id", req.UserID,
		"fields", len(found))

	return &Reply{
		Text: fmt.Sprintf("I pulled the following from that document and added it to your intake: %s. Let me know if anything looks wrong and I'll correct it.",
			strings.Join(found, ", ")),
		Fields: fields,
	}, nil
}
