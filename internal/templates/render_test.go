package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		body string
		vars map[string]string
		want string
	}{
		{
			name: "simple substitution",
			body: "Hola {{name}}!",
			vars: map[string]string{"name": "Ana"},
			want: "Hola Ana!",
		},
		{
			name: "multiple occurrences",
			body: "{{name}} y {{name}}",
			vars: map[string]string{"name": "Ana"},
			want: "Ana y Ana",
		},
		{
			name: "unresolved placeholder left verbatim",
			body: "Hola {{name}}, tu código es {{access_code}}",
			vars: map[string]string{"name": "Ana"},
			want: "Hola Ana, tu código es {{access_code}}",
		},
		{
			name: "whitespace inside braces",
			body: "Hola {{ name }}!",
			vars: map[string]string{"name": "Ana"},
			want: "Hola Ana!",
		},
		{
			name: "empty value substitutes empty",
			body: "Hola {{name}}!",
			vars: map[string]string{"name": ""},
			want: "Hola !",
		},
		{
			name: "unterminated braces left alone",
			body: "Hola {{name",
			vars: map[string]string{"name": "Ana"},
			want: "Hola {{name",
		},
		{
			name: "no placeholders",
			body: "plain text",
			vars: map[string]string{"name": "Ana"},
			want: "plain text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.body, tt.vars))
		})
	}
}

func TestVars_Map(t *testing.T) {
	v := Vars{
		GuestName:   "Ana",
		AccessCode:  "482913",
		PaymentLink: "https://pay.example/abc",
	}
	m := v.Map()
	assert.Equal(t, "Ana", m["name"])
	assert.Equal(t, "482913", m["access_code"])
	assert.Equal(t, "https://pay.example/abc", m["payment_link"])

	rendered := Render("{{name}}: {{access_code}} via {{payment_link}}", m)
	assert.Equal(t, "Ana: 482913 via https://pay.example/abc", rendered)
}
