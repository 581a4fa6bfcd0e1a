package template

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const truncateAt = 50

type formatter func(v any, opts Options) string

var formatters = map[string]formatter{
	"date":       timeFormatter("Jan 2, 2006"),
	"datetime":   timeFormatter("Jan 2, 2006 3:04 PM"),
	"time":       timeFormatter("3:04 PM"),
	"currency":   formatCurrency,
	"percent":    formatPercent,
	"number":     formatNumber,
	"uppercase":  func(v any, o Options) string { return strings.ToUpper(render(v, o)) },
	"lowercase":  func(v any, o Options) string { return strings.ToLower(render(v, o)) },
	"capitalize": formatCapitalize,
	"truncate":   formatTruncate,
	"list":       formatList,
	"count":      formatCount,
}

// render is the type-directed default rendering.
func render(v any, opts Options) string {
	switch x := v.(type) {
	case nil:
		return opts.DefaultValue
	case string:
		return x
	case time.Time:
		return localize(x, opts).Format("1/2/2006")
	case *time.Time:
		if x == nil {
			return opts.DefaultValue
		}
		return localize(*x, opts).Format("1/2/2006")
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return renderFloat(f)
		}
		return x.String()
	case float64:
		return renderFloat(x)
	case float32:
		return renderFloat(float64(x))
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return groupInt(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return groupInt(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Slice, reflect.Array:
		return joinList(rv, opts)
	case reflect.Map, reflect.Struct:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// renderFloat groups whole numbers and treats values with exactly two
// decimal digits as money.
func renderFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if f == math.Trunc(f) {
		return fixed(f, 0, false)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if dot := strings.IndexByte(s, '.'); dot >= 0 && len(s)-dot-1 == 2 {
		return currency(f)
	}
	return fixed(f, 3, true)
}

func currency(f float64) string {
	if f < 0 {
		return "-$" + fixed(-f, 2, false)
	}
	return "$" + fixed(f, 2, false)
}

// fixed formats f with thousands separators and the given decimals,
// optionally trimming trailing zeros.
func fixed(f float64, decimals int, trim bool) string {
	s := strconv.FormatFloat(f, 'f', decimals, 64)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")
	if trim {
		frac = strings.TrimRight(frac, "0")
	}
	out := groupInt(intPart)
	if frac != "" {
		out += "." + frac
	}
	if neg && strings.Trim(out, "0.,") != "" {
		out = "-" + out
	}
	return out
}

func groupInt(digits string) string {
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")
	if len(digits) <= 3 {
		if neg {
			return "-" + digits
		}
		return digits
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func joinList(rv reflect.Value, opts Options) string {
	parts := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item := rv.Index(i).Interface()
		if isNil(item) {
			continue
		}
		parts = append(parts, render(item, opts))
	}
	return strings.Join(parts, ", ")
}

func localize(t time.Time, opts Options) time.Time {
	if opts.Location != nil {
		return t.In(opts.Location)
	}
	return t
}

func timeFormatter(layout string) formatter {
	return func(v any, opts Options) string {
		t, ok := toTime(v)
		if !ok {
			return render(v, opts)
		}
		return localize(t, opts).Format(layout)
	}
}

func formatCurrency(v any, opts Options) string {
	f, ok := toFloat(v)
	if !ok {
		return render(v, opts)
	}
	return currency(f)
}

func formatPercent(v any, opts Options) string {
	f, ok := toFloat(v)
	if !ok {
		return render(v, opts)
	}
	return strconv.FormatFloat(f, 'f', -1, 64) + "%"
}

func formatNumber(v any, opts Options) string {
	f, ok := toFloat(v)
	if !ok {
		return render(v, opts)
	}
	return fixed(f, 2, true)
}

func formatCapitalize(v any, opts Options) string {
	s := render(v, opts)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func formatTruncate(v any, opts Options) string {
	s := render(v, opts)
	if utf8.RuneCountInString(s) <= truncateAt {
		return s
	}
	return string([]rune(s)[:truncateAt]) + "..."
}

func formatList(v any, opts Options) string {
	rv := indirect(reflect.ValueOf(v))
	if rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		return joinList(rv, opts)
	}
	return render(v, opts)
}

func formatCount(v any, opts Options) string {
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return "0"
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return strconv.Itoa(rv.Len())
	case reflect.String:
		return strconv.Itoa(utf8.RuneCountInString(rv.String()))
	}
	return "1"
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return *x, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, strings.TrimSpace(x)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
