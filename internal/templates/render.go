package templates

import "strings"

// Vars is the typed set of substitution variables available to guest-facing
// templates. Using a struct instead of an open map keeps the variable names a
// compile-time contract between the pipeline and the template bodies.
type Vars struct {
	GuestName    string
	RoomName     string
	CheckInDate  string
	PaymentLink  string
	AccessCode   string
	CheckInLink  string
	PropertyName string
}

// Map flattens the typed vars into the substitution map used by Render.
func (v Vars) Map() map[string]string {
	return map[string]string{
		"name":          v.GuestName,
		"room":          v.RoomName,
		"check_in_date": v.CheckInDate,
		"payment_link":  v.PaymentLink,
		"access_code":   v.AccessCode,
		"checkin_link":  v.CheckInLink,
		"property":      v.PropertyName,
	}
}

// Render substitutes {{name}} style placeholders in a template body.
// Placeholders with no matching variable are left verbatim, and rendering
// never fails: a half-filled guest message is more useful than none.
func Render(body string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(body))
	for {
		start := strings.Index(body, "{{")
		if start < 0 {
			b.WriteString(body)
			return b.String()
		}
		end := strings.Index(body[start:], "}}")
		if end < 0 {
			b.WriteString(body)
			return b.String()
		}
		end += start

		b.WriteString(body[:start])
		key := strings.TrimSpace(body[start+2 : end])
		if val, ok := vars[key]; ok {
			b.WriteString(val)
		} else {
			b.WriteString(body[start : end+2])
		}
		body = body[end+2:]
	}
}
