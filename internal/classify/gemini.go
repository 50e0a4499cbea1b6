// ABOUTME: Gemini-backed Classifier implementation using google.golang.org/genai
// ABOUTME: Prompts the model for strict-JSON verdicts and blends crisis scores with the lexicon floor

package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

const crisisPrompt = `You are a crisis triage classifier for a substance-abuse
treatment navigation assistant. Rate the urgency of the user message on a
1-5 scale where 5 means imminent risk of self-harm or harm to others and 1
means no crisis signal. Respond with JSON only:
{"urgency_level": <1-5>, "rationale": "<one sentence>"}

User message:
`

const topicPrompt = `You are a topic filter for a substance-abuse treatment
navigation assistant. Decide whether the user message concerns seeking
treatment, recovery support, insurance, scheduling, or related logistics.
Respond with JSON only:
{"on_topic": <true|false>, "rationale": "<one sentence>"}

User message:
`

const safetyPrompt = `You are a response safety validator for a treatment
navigation assistant. The assistant must never give a medical diagnosis,
prescribe or adjust medication, or make unsafe recommendations. Decide
whether the candidate reply is safe to send. Respond with JSON only:
{"safe": <true|false>, "rationale": "<one sentence>"}

Candidate reply:
`

// GeminiClassifier implements Classifier against the Gemini API.
type GeminiClassifier struct {
	client *genai.Client
	model  string
}

// NewGeminiClassifier creates a classifier backed by the Gemini API.
func NewGeminiClassifier(ctx context.Context, apiKey, model string) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("classifier API key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClassifier{
		client: client,
		model:  model,
	}, nil
}

// AssessCrisis classifies the urgency of a message. The lexicon floor is
// applied on top of the model score so a keyword hit can raise, but never
// lower, the urgency.
func (g *GeminiClassifier) AssessCrisis(ctx context.Context, message string) (*CrisisAssessment, error) {
	var out CrisisAssessment
	if err := g.generateJSON(ctx, crisisPrompt+message, &out); err != nil {
		return nil, err
	}
	out.UrgencyLevel = clampUrgency(out.UrgencyLevel)

	if floor, phrase := CrisisFloor(message); floor > out.UrgencyLevel {
		out.UrgencyLevel = floor
		out.Rationale = fmt.Sprintf("lexicon floor %d (%s); model said: %s", floor, phrase, out.Rationale)
	}
	return &out, nil
}

// AssessTopic classifies whether a message is treatment-seeking.
func (g *GeminiClassifier) AssessTopic(ctx context.Context, message string) (*TopicAssessment, error) {
	var out TopicAssessment
	if err := g.generateJSON(ctx, topicPrompt+message, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssessResponseSafety classifies whether a candidate reply is safe to send.
func (g *GeminiClassifier) AssessResponseSafety(ctx context.Context, reply string) (*SafetyAssessment, error) {
	var out SafetyAssessment
	if err := g.generateJSON(ctx, safetyPrompt+reply, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// generateJSON runs one generation call and unmarshals the JSON reply.
func (g *GeminiClassifier) generateJSON(ctx context.Context, prompt string, out any) error {
	temp := float32(0)
	resp, err := g.client.Models.GenerateContent(ctx,
		g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			Temperature:      &temp,
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return fmt.Errorf("classifier call failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return fmt.Errorf("classifier returned empty response")
	}
	// Some models wrap JSON in fences even with a JSON MIME type.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), out); err != nil {
		return fmt.Errorf("parsing classifier response: %w", err)
	}
	return nil
}
