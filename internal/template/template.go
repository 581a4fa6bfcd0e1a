// Package template renders {{path}} and {{path|formatter}} tokens against a
// context map. Rendering is a single regex pass and never fails: unresolved
// values fall back to Options.DefaultValue.
package template

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxBytes caps the size of a template that will be rendered.
const DefaultMaxBytes = 16 << 10

var (
	tokenRe = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	pathRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\[[0-9]+\])*(\.[A-Za-z_][A-Za-z0-9_]*(\[[0-9]+\])*)*$`)
)

// Options tune rendering.
type Options struct {
	// DefaultValue replaces missing or null values.
	DefaultValue string
	// MaxBytes is the largest template rendered; larger ones are returned
	// untouched. Zero means DefaultMaxBytes, negative disables the cap.
	MaxBytes int
	// Location converts time values before formatting. Nil keeps the
	// value's own location.
	Location *time.Location
}

func (o Options) maxBytes() int {
	if o.MaxBytes == 0 {
		return DefaultMaxBytes
	}
	return o.MaxBytes
}

// Interpolate substitutes every token of tmpl from ctx.
func Interpolate(tmpl string, ctx map[string]any, opts Options) string {
	if tmpl == "" || !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	if limit := opts.maxBytes(); limit > 0 && len(tmpl) > limit {
		return tmpl
	}
	return tokenRe.ReplaceAllStringFunc(tmpl, func(tok string) string {
		path, formatter := splitToken(tok[2 : len(tok)-2])
		if path == "" {
			return opts.DefaultValue
		}
		v, ok := Lookup(ctx, path)
		if !ok || isNil(v) {
			return opts.DefaultValue
		}
		if formatter != "" {
			if f, known := formatters[formatter]; known {
				return f(v, opts)
			}
		}
		return render(v, opts)
	})
}

// Result is the outcome of Validate.
type Result struct {
	Variables []string `json:"variables"`
	Errors    []string `json:"errors"`
}

// Valid reports whether no syntax errors were found.
func (r Result) Valid() bool { return len(r.Errors) == 0 }

// Validate parses tmpl without evaluating it.
func Validate(tmpl string, opts Options) Result {
	res := Result{Variables: []string{}, Errors: []string{}}
	if limit := opts.maxBytes(); limit > 0 && len(tmpl) > limit {
		res.Errors = append(res.Errors, fmt.Sprintf("template is %d bytes, limit is %d", len(tmpl), limit))
		return res
	}
	seen := map[string]bool{}
	last := 0
	for _, loc := range tokenRe.FindAllStringSubmatchIndex(tmpl, -1) {
		if strings.Contains(tmpl[last:loc[0]], "{{") {
			res.Errors = append(res.Errors, fmt.Sprintf("unclosed token at offset %d", last+strings.Index(tmpl[last:loc[0]], "{{")))
		}
		last = loc[1]
		path, formatter := splitToken(tmpl[loc[2]:loc[3]])
		switch {
		case path == "":
			res.Errors = append(res.Errors, fmt.Sprintf("empty token at offset %d", loc[0]))
			continue
		case !pathRe.MatchString(path):
			res.Errors = append(res.Errors, fmt.Sprintf("invalid variable path %q", path))
			continue
		}
		if formatter != "" {
			if _, ok := formatters[formatter]; !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("unknown formatter %q for %q", formatter, path))
			}
		}
		if !seen[path] {
			seen[path] = true
			res.Variables = append(res.Variables, path)
		}
	}
	if i := strings.Index(tmpl[last:], "{{"); i >= 0 {
		res.Errors = append(res.Errors, fmt.Sprintf("unclosed token at offset %d", last+i))
	}
	return res
}

// Formatters lists the formatter names accepted after "|".
func Formatters() []string {
	return []string{"date", "datetime", "time", "currency", "percent", "number",
		"uppercase", "lowercase", "capitalize", "truncate", "list", "count"}
}

func splitToken(inner string) (path, formatter string) {
	inner = strings.TrimSpace(inner)
	if i := strings.IndexByte(inner, '|'); i >= 0 {
		return strings.TrimSpace(inner[:i]), strings.TrimSpace(inner[i+1:])
	}
	return inner, ""
}

// Lookup resolves a dotted path with optional [i] indexes, e.g.
// "candidate.emails[0]". Maps with string keys, slices, arrays and pointers
// to them are traversed.
func Lookup(ctx map[string]any, path string) (any, bool) {
	var cur any = ctx
	for _, seg := range strings.Split(path, ".") {
		name, idxs, ok := parseSegment(seg)
		if !ok {
			return nil, false
		}
		if cur, ok = field(cur, name); !ok {
			return nil, false
		}
		for _, i := range idxs {
			if cur, ok = index(cur, i); !ok {
				return nil, false
			}
		}
	}
	return cur, true
}

func parseSegment(seg string) (string, []int, bool) {
	open := strings.IndexByte(seg, '[')
	if open < 0 {
		return seg, nil, seg != ""
	}
	name, rest := seg[:open], seg[open:]
	var idxs []int
	for rest != "" {
		if rest[0] != '[' {
			return "", nil, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, false
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil || n < 0 {
			return "", nil, false
		}
		idxs = append(idxs, n)
		rest = rest[end+1:]
	}
	return name, idxs, name != ""
}

func field(v any, name string) (any, bool) {
	if m, ok := v.(map[string]any); ok {
		out, found := m[name]
		return out, found
	}
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key()))
	if !out.IsValid() {
		return nil, false
	}
	return out.Interface(), true
}

func index(v any, i int) (any, bool) {
	if s, ok := v.([]any); ok {
		if i >= len(s) {
			return nil, false
		}
		return s[i], true
	}
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || i >= rv.Len() {
		return nil, false
	}
	return rv.Index(i).Interface(), true
}

func indirect(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
