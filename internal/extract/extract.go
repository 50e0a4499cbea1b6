// ABOUTME: Document/field-extraction capability boundary consumed by the intake-form specialist
// ABOUTME: Structured output is consumed as-is; the specialist does no post-interpretation

package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/carenav/navigator/internal/store"
)

// Extractor pulls structured intake fields out of free-form document text.
type Extractor interface {
	ExtractIntakeFields(ctx context.Context, document string) (*store.IntakeFields, error)
}

const extractPrompt = `Extract intake fields from the following document text for
a substance-abuse treatment intake form. Respond with JSON only, using empty
strings for fields that are not present:
{"contact": "", "location": "", "treatment_type": "", "payment_method": "",
 "insurance_provider": "", "special_considerations": ""}

Document:
`

// GeminiExtractor implements Extractor against the Gemini API.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates an extractor backed by the Gemini API.
func NewGeminiExtractor(ctx context.Context, apiKey, model string) (*GeminiExtractor, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("extractor API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

// ExtractIntakeFields runs one extraction call and returns the structured
// fields exactly as the capability produced them.
func (e *GeminiExtractor) ExtractIntakeFields(ctx context.Context, document string) (*store.IntakeFields, error) {
	temp := float32(0)
	resp, err := e.client.Models.GenerateContent(ctx,
		e.model,
		genai.Text(extractPrompt+document),
		&genai.GenerateContentConfig{
			Temperature:      &temp,
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var fields store.IntakeFields
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &fields); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w", err)
	}
	return &fields, nil
}
