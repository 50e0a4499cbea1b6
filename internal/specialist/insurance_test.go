// ABOUTME: Tests for insurance verification and provider normalization
// ABOUTME: Covers known providers, unknown providers, and the no-provider prompt

package specialist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carenav/navigator/internal/store"
)

func TestNormalizeProvider(t *testing.T) {
	tests := []struct {
		in    string
		want  string
		known bool
	}{
		{"Aetna", "aetna", true},
		{"  CIGNA  ", "cigna", true},
		{"Blue Cross of Colorado", "blue cross", true},
		{"Humana Gold Plus", "humana", true},
		{"Medicaid", "medicaid", true},
		{"Acme Health Collective", "acme health collective", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, known := NormalizeProvider(tt.in)
			assert.Equal(t, tt.known, known)
			if tt.known {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestInsuranceVerifier_KnownProvider(t *testing.T) {
	v := NewInsuranceVerifier(nil)

	reply, err := v.Handle(t.Context(), &Request{
		UserID: "user-1",
		Fields: store.IntakeFields{InsuranceProvider: "Aetna"},
	})

	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Aetna")
	assert.Contains(t, reply.Text, "treatment")
}

func TestInsuranceVerifier_UnknownProvider(t *testing.T) {
	v := NewInsuranceVerifier(nil)

	reply, err := v.Handle(t.Context(), &Request{
		UserID: "user-1",
		Fields: store.IntakeFields{InsuranceProvider: "Acme Health Collective"},
	})

	require.NoError(t, err)
	assert.Contains(t, reply.Text, "member services")
}

func TestInsuranceVerifier_NoProviderOnFile(t *testing.T) {
	v := NewInsuranceVerifier(nil)

	for _, provider := range []string{"", "unknown"} {
		reply, err := v.Handle(t.Context(), &Request{
			UserID: "user-1",
			Fields: store.IntakeFields{InsuranceProvider: provider},
		})
		require.NoError(t, err)
		assert.Contains(t, reply.Text, "don't have an insurance provider on file")
	}
}
