// ABOUTME: Tests for PII redaction patterns
// ABOUTME: Covers email, phone, address, and id-number placeholders

package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   string
		labels []string
	}{
		{
			name:   "email",
			in:     "reach me at jo.smith@example.com please",
			want:   "reach me at [REDACTED-EMAIL] please",
			labels: []string{"email"},
		},
		{
			name:   "phone",
			in:     "call 555-123-4567 after noon",
			want:   "call [REDACTED-PHONE] after noon",
			labels: []string{"phone"},
		},
		{
			name:   "ssn-like id",
			in:     "my number is 123-45-6789",
			want:   "my number is [REDACTED-ID]",
			labels: []string{"id"},
		},
		{
			name:   "street address",
			in:     "I live at 42 Maple Street",
			want:   "I live at [REDACTED-ADDRESS]",
			labels: []string{"address"},
		},
		{
			name: "clean text untouched",
			in:   "looking for outpatient treatment in Denver",
			want: "looking for outpatient treatment in Denver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, labels := Redact(tt.in)
			assert.Equal(t, tt.want, got)
			if len(tt.labels) == 0 {
				assert.Empty(t, labels)
			} else {
				for _, l := range tt.labels {
					assert.Contains(t, labels, l)
				}
			}
		})
	}
}

func TestRedact_MultipleIdentifiers(t *testing.T) {
	got, labels := Redact("email jo@example.com or 555-123-4567")

	assert.NotContains(t, got, "jo@example.com")
	assert.NotContains(t, got, "555-123-4567")
	assert.Len(t, labels, 2)
}
