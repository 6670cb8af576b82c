package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"guestflow/internal/types"
)

func strPtr(s string) *string { return &s }

func TestResolve_Nationality(t *testing.T) {
	tests := []struct {
		name        string
		nationality string
		want        types.Language
	}{
		{"colombia exact", "Colombia", types.LangSpanish},
		{"colombia lowercase", "colombia", types.LangSpanish},
		{"spain spanish spelling", "España", types.LangSpanish},
		{"france", "France", types.LangEnglish},
		{"germany", "Germany", types.LangEnglish},
		{"substring colombian", "Colombian", types.LangSpanish},
		{"substring with label", "Nationality: France", types.LangEnglish},
		{"two letter AR", "AR", types.LangSpanish},
		{"two letter PA", "PA", types.LangSpanish},
		{"two letter CO", "CO", types.LangSpanish},
		{"two letter US", "US", types.LangEnglish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(strPtr(tt.nationality), nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_AmbiguousSubstringIsStable(t *testing.T) {
	// "AR" is a substring of countries in both languages; the match order is
	// fixed, so repeated calls must agree.
	first := Resolve(strPtr("AR"), nil)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Resolve(strPtr("AR"), nil))
	}
	assert.Equal(t, types.LangSpanish, first)
}

func TestResolve_PhonePrefix(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		want  types.Language
	}{
		{"switzerland", "+41 79 123 45 67", types.LangEnglish},
		{"colombia", "+57 300 123 4567", types.LangSpanish},
		{"ecuador beats shorter prefixes", "+593991234567", types.LangSpanish},
		{"uk", "+447911123456", types.LangEnglish},
		{"double zero form", "0041791234567", types.LangEnglish},
		{"formatted with dashes", "+1-212-555-0199", types.LangEnglish},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(nil, strPtr(tt.phone))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Precedence(t *testing.T) {
	// Nationality wins even when the phone prefix disagrees.
	got := Resolve(strPtr("Colombia"), strPtr("+41791234567"))
	assert.Equal(t, types.LangSpanish, got)

	// Unrecognized nationality falls through to the phone.
	got = Resolve(strPtr("Atlantis"), strPtr("+41791234567"))
	assert.Equal(t, types.LangEnglish, got)
}

func TestResolve_Default(t *testing.T) {
	assert.Equal(t, types.LangSpanish, Resolve(nil, nil))
	assert.Equal(t, types.LangSpanish, Resolve(strPtr(""), strPtr("")))
	assert.Equal(t, types.LangSpanish, Resolve(strPtr("Atlantis"), strPtr("not-a-phone")))
}
