// Package locale resolves the language used for guest-facing content.
//
// Resolution order: guest nationality first, then the phone number's
// international calling code, then the Spanish default. The pipeline only
// produces Spanish and English content; any country outside the
// Spanish-speaking set maps to English.
package locale

import (
	"sort"
	"strings"

	"guestflow/internal/types"
)

// countryLanguage maps normalized country names to content language.
// Spanish-speaking countries map to Spanish, the rest to English. Names from
// booking channels arrive in both English and Spanish spellings.
var countryLanguage = map[string]types.Language{
	// Spanish-speaking
	"colombia":             types.LangSpanish,
	"mexico":               types.LangSpanish,
	"méxico":               types.LangSpanish,
	"spain":                types.LangSpanish,
	"españa":               types.LangSpanish,
	"argentina":            types.LangSpanish,
	"peru":                 types.LangSpanish,
	"perú":                 types.LangSpanish,
	"chile":                types.LangSpanish,
	"ecuador":              types.LangSpanish,
	"venezuela":            types.LangSpanish,
	"bolivia":              types.LangSpanish,
	"uruguay":              types.LangSpanish,
	"paraguay":             types.LangSpanish,
	"guatemala":            types.LangSpanish,
	"honduras":             types.LangSpanish,
	"nicaragua":            types.LangSpanish,
	"el salvador":          types.LangSpanish,
	"costa rica":           types.LangSpanish,
	"panama":               types.LangSpanish,
	"panamá":               types.LangSpanish,
	"cuba":                 types.LangSpanish,
	"dominican republic":   types.LangSpanish,
	"república dominicana": types.LangSpanish,
	"puerto rico":          types.LangSpanish,

	// Common non-Spanish origins
	"united states":  types.LangEnglish,
	"usa":            types.LangEnglish,
	"united kingdom": types.LangEnglish,
	"england":        types.LangEnglish,
	"ireland":        types.LangEnglish,
	"canada":         types.LangEnglish,
	"australia":      types.LangEnglish,
	"new zealand":    types.LangEnglish,
	"france":         types.LangEnglish,
	"germany":        types.LangEnglish,
	"netherlands":    types.LangEnglish,
	"belgium":        types.LangEnglish,
	"switzerland":    types.LangEnglish,
	"austria":        types.LangEnglish,
	"italy":          types.LangEnglish,
	"portugal":       types.LangEnglish,
	"brazil":         types.LangEnglish,
	"brasil":         types.LangEnglish,
	"sweden":         types.LangEnglish,
	"norway":         types.LangEnglish,
	"denmark":        types.LangEnglish,
	"finland":        types.LangEnglish,
	"poland":         types.LangEnglish,
	"israel":         types.LangEnglish,
	"japan":          types.LangEnglish,
	"china":          types.LangEnglish,
	"south korea":    types.LangEnglish,
	"india":          types.LangEnglish,
}

// prefixLanguage maps international calling codes to content language.
// Longest matching prefix wins.
var prefixLanguage = map[string]types.Language{
	// Spanish-speaking
	"+57":  types.LangSpanish, // Colombia
	"+34":  types.LangSpanish, // Spain
	"+52":  types.LangSpanish, // Mexico
	"+54":  types.LangSpanish, // Argentina
	"+51":  types.LangSpanish, // Peru
	"+56":  types.LangSpanish, // Chile
	"+53":  types.LangSpanish, // Cuba
	"+58":  types.LangSpanish, // Venezuela
	"+591": types.LangSpanish, // Bolivia
	"+593": types.LangSpanish, // Ecuador
	"+595": types.LangSpanish, // Paraguay
	"+598": types.LangSpanish, // Uruguay
	"+502": types.LangSpanish, // Guatemala
	"+503": types.LangSpanish, // El Salvador
	"+504": types.LangSpanish, // Honduras
	"+505": types.LangSpanish, // Nicaragua
	"+506": types.LangSpanish, // Costa Rica
	"+507": types.LangSpanish, // Panama

	// Non-Spanish
	"+1":   types.LangEnglish, // NANP
	"+44":  types.LangEnglish, // UK
	"+33":  types.LangEnglish, // France
	"+49":  types.LangEnglish, // Germany
	"+31":  types.LangEnglish, // Netherlands
	"+32":  types.LangEnglish, // Belgium
	"+39":  types.LangEnglish, // Italy
	"+41":  types.LangEnglish, // Switzerland
	"+43":  types.LangEnglish, // Austria
	"+351": types.LangEnglish, // Portugal
	"+55":  types.LangEnglish, // Brazil
	"+46":  types.LangEnglish, // Sweden
	"+47":  types.LangEnglish, // Norway
	"+45":  types.LangEnglish, // Denmark
	"+61":  types.LangEnglish, // Australia
	"+64":  types.LangEnglish, // New Zealand
	"+81":  types.LangEnglish, // Japan
	"+86":  types.LangEnglish, // China
	"+91":  types.LangEnglish, // India
	"+972": types.LangEnglish, // Israel
}

// Resolve determines the guest's content language from nationality and phone.
// Nationality wins over phone; an unrecognized or absent pair falls back to
// Spanish, the default for a Colombian hostel audience.
func Resolve(nationality, phone *string) types.Language {
	if nationality != nil {
		if lang, ok := byNationality(*nationality); ok {
			return lang
		}
	}
	if phone != nil {
		if lang, ok := byPhonePrefix(*phone); ok {
			return lang
		}
	}
	return types.LangSpanish
}

// countryNames holds the table keys in a fixed match order: longer names
// first so the most specific country wins, Spanish before English on equal
// length, then alphabetical. Substring matching must not depend on map
// iteration order; short inputs like "AR" or "PA" touch several countries.
var countryNames = func() []string {
	names := make([]string, 0, len(countryLanguage))
	for name := range countryLanguage {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := names[i], names[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		if la, lb := countryLanguage[a], countryLanguage[b]; la != lb {
			return la == types.LangSpanish
		}
		return a < b
	})
	return names
}()

// byNationality matches a raw nationality string against the country table,
// first exactly then by substring in either direction. Substring matching
// covers channel values like "Colombian" or "Nationality: France".
func byNationality(raw string) (types.Language, bool) {
	n := strings.ToLower(strings.TrimSpace(raw))
	if n == "" {
		return "", false
	}
	if lang, ok := countryLanguage[n]; ok {
		return lang, true
	}
	for _, country := range countryNames {
		if strings.Contains(n, country) || strings.Contains(country, n) {
			return countryLanguage[country], true
		}
	}
	return "", false
}

// byPhonePrefix matches the phone's calling code against the prefix table,
// longest prefix first so "+593" beats "+5".
func byPhonePrefix(raw string) (types.Language, bool) {
	p := normalizePhone(raw)
	if p == "" {
		return "", false
	}
	var (
		best    types.Language
		bestLen int
	)
	for prefix, lang := range prefixLanguage {
		if strings.HasPrefix(p, prefix) && len(prefix) > bestLen {
			best = lang
			bestLen = len(prefix)
		}
	}
	if bestLen == 0 {
		return "", false
	}
	return best, true
}

// normalizePhone strips spacing and punctuation and ensures a leading plus,
// accepting the "00" international dialing form.
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	p := b.String()
	if strings.HasPrefix(p, "00") {
		p = "+" + p[2:]
	}
	if p == "" || p[0] != '+' {
		return ""
	}
	return p
}
