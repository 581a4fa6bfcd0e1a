package template

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate_NestedPath(t *testing.T) {
	ctx := map[string]any{"candidate": map[string]any{"name": "Jane Doe"}}
	assert.Equal(t, "Follow up with Jane Doe", Interpolate("Follow up with {{candidate.name}}", ctx, Options{}))
}

func TestInterpolate_CurrencyFormatter(t *testing.T) {
	assert.Equal(t, "Rate: $125.50", Interpolate("Rate: {{rate|currency}}", map[string]any{"rate": 125.5}, Options{}))
	assert.Equal(t, "-$42.50", Interpolate("{{ v | currency }}", map[string]any{"v": -42.5}, Options{}))
	assert.Equal(t, "$1,200.00", Interpolate("{{v|currency}}", map[string]any{"v": 1200}, Options{}))
}

func TestInterpolate_MissingValues(t *testing.T) {
	ctx := map[string]any{"present": "x", "null": nil}
	assert.Equal(t, "[]", Interpolate("[{{absent}}]", ctx, Options{}))
	assert.Equal(t, "[n/a|n/a]", Interpolate("[{{absent.deep}}|{{null}}]", ctx, Options{DefaultValue: "n/a"}))
	assert.Equal(t, "[n/a]", Interpolate("[{{present.child}}]", ctx, Options{DefaultValue: "n/a"}))
	assert.Equal(t, "[n/a]", Interpolate("[{{absent|currency}}]", ctx, Options{DefaultValue: "n/a"}))
}

func TestInterpolate_ArrayIndex(t *testing.T) {
	ctx := map[string]any{
		"emails": []any{"a@example.com", "b@example.com"},
		"jobs":   []map[string]any{{"title": "Engineer"}},
	}
	assert.Equal(t, "b@example.com", Interpolate("{{emails[1]}}", ctx, Options{}))
	assert.Equal(t, "Engineer", Interpolate("{{jobs[0].title}}", ctx, Options{}))
	assert.Equal(t, "", Interpolate("{{emails[5]}}", ctx, Options{}))
}

func TestInterpolate_DefaultRendering(t *testing.T) {
	when := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	ctx := map[string]any{
		"count":   1234567,
		"whole":   2000.0,
		"money":   1500.25,
		"ratio":   1234.5,
		"skills":  []string{"go", "sql"},
		"when":    when,
		"flag":    true,
		"details": map[string]any{"k": "v"},
	}
	cases := map[string]string{
		"{{count}}":   "1,234,567",
		"{{whole}}":   "2,000",
		"{{money}}":   "$1,500.25",
		"{{ratio}}":   "1,234.5",
		"{{skills}}":  "go, sql",
		"{{when}}":    "3/5/2026",
		"{{flag}}":    "true",
		"{{details}}": `{"k":"v"}`,
	}
	for tmpl, want := range cases {
		assert.Equal(t, want, Interpolate(tmpl, ctx, Options{}), tmpl)
	}
}

func TestInterpolate_Formatters(t *testing.T) {
	when := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	ctx := map[string]any{
		"when":   when,
		"day":    "2026-03-05",
		"pct":    12.5,
		"amount": 1234.567,
		"name":   "hELLO world",
		"long":   strings.Repeat("a", 60),
		"tags":   []any{"x", "y", "z"},
	}
	cases := map[string]string{
		"{{when|date}}":       "Mar 5, 2026",
		"{{when|datetime}}":   "Mar 5, 2026 2:30 PM",
		"{{when|time}}":       "2:30 PM",
		"{{day|date}}":        "Mar 5, 2026",
		"{{pct|percent}}":     "12.5%",
		"{{amount|number}}":   "1,234.57",
		"{{name|uppercase}}":  "HELLO WORLD",
		"{{name|lowercase}}":  "hello world",
		"{{name|capitalize}}": "Hello world",
		"{{long|truncate}}":   strings.Repeat("a", 50) + "...",
		"{{tags|list}}":       "x, y, z",
		"{{tags|count}}":      "3",
		"{{name|unknown}}":    "hELLO world",
	}
	for tmpl, want := range cases {
		assert.Equal(t, want, Interpolate(tmpl, ctx, Options{}), tmpl)
	}
}

func TestInterpolate_Location(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	when := time.Date(2026, 3, 5, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "3/4/2026", Interpolate("{{when}}", map[string]any{"when": when}, Options{Location: ny}))
}

func TestInterpolate_SinglePass(t *testing.T) {
	ctx := map[string]any{"a": "{{b}}", "b": "x"}
	assert.Equal(t, "{{b}}", Interpolate("{{a}}", ctx, Options{}))
}

func TestInterpolate_SizeCap(t *testing.T) {
	tmpl := "{{a}} and some trailing text"
	ctx := map[string]any{"a": "x"}
	assert.Equal(t, tmpl, Interpolate(tmpl, ctx, Options{MaxBytes: 10}))
	assert.Equal(t, "x and some trailing text", Interpolate(tmpl, ctx, Options{MaxBytes: -1}))
}

func TestValidate_Variables(t *testing.T) {
	res := Validate("Hello {{candidate.name}} for {{ job.title | uppercase }} ({{candidate.name}}) {{items[0].id}}", Options{})
	assert.True(t, res.Valid())
	assert.Equal(t, []string{"candidate.name", "job.title", "items[0].id"}, res.Variables)
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":     "Hi {{ }}",
		"path":      "Hi {{bad path!}}",
		"formatter": "Hi {{name|shout}}",
		"unclosed":  "Hi {{name",
		"nested":    "Hi {{a{{b}}",
	}
	for name, tmpl := range cases {
		res := Validate(tmpl, Options{})
		assert.False(t, res.Valid(), name)
		assert.Len(t, res.Errors, 1, name)
	}

	res := Validate(strings.Repeat("x", 20), Options{MaxBytes: 10})
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "limit is 10")
}

func TestValidate_RoundTrip(t *testing.T) {
	templates := []string{
		"Follow up with {{candidate.name}} about {{job.title|uppercase}}",
		"{{a}}{{b.c.d}} then {{e|date}}",
		"plain text",
	}
	for _, tmpl := range templates {
		res := Validate(tmpl, Options{})
		require.True(t, res.Valid(), tmpl)

		ctx := map[string]any{}
		for _, path := range res.Variables {
			setPath(ctx, path, "value")
		}
		out := Interpolate(tmpl, ctx, Options{})
		assert.NotContains(t, out, "{{", tmpl)
		assert.NotContains(t, out, "}}", tmpl)
	}
}

func TestNewContext(t *testing.T) {
	now := time.Date(2026, 8, 14, 10, 30, 0, 0, time.UTC)
	ctx := NewContext(
		map[string]any{"name": "event", "today": "shadowed", "keep": 1},
		map[string]any{"name": "extra"},
		now,
	)
	assert.Equal(t, "extra", ctx["name"])
	assert.Equal(t, 1, ctx["keep"])
	assert.Equal(t, time.Date(2026, 8, 14, 0, 0, 0, 0, time.UTC), ctx["today"])
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), ctx["tomorrow"])
	assert.Equal(t, now, ctx["now"])
	assert.Equal(t, "2026-08-14", ctx["current_date"])
	assert.Equal(t, "2026", ctx["current_year"])
	assert.Equal(t, "Q3", ctx["current_quarter"])
	assert.Equal(t, "August", ctx["current_month"])
	assert.Equal(t, "Year 2026, Q3", Interpolate("Year {{current_year}}, {{current_quarter}}", ctx, Options{}))
}

func setPath(ctx map[string]any, path, value string) {
	parts := strings.Split(path, ".")
	cur := ctx
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}
