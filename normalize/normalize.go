// Package normalize coerces raw extraction output (LLM JSON or regex matches)
// into a schema-conformant form.Record. The guiding policy is "drop rather
// than fabricate": values that cannot be parsed into the field's type are
// removed, never defaulted or passed through raw.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ymiyake/contractintake/form"
)

// ErrRecordInvalid is returned when record construction still fails after
// dropping the offending fields once.
var ErrRecordInvalid = errors.New("normalize: record construction failed")

// Normalize builds a Record from a raw field map.
//   - unknown keys, nils, and empty strings are dropped (absent, not cleared)
//   - list values collapse to newline-joined text for text fields
//   - dates and amounts are parsed; unparseable values are dropped
//   - enum / multi-choice values outside the vocabulary are dropped
//
// If constructing the record fails for some fields, exactly those fields are
// removed and construction is retried once. A second failure is fatal.
func Normalize(raw map[string]any) (*form.Record, error) {
	cleaned := cleanPayload(raw)

	rec, bad := build(cleaned)
	if len(bad) == 0 {
		return rec, nil
	}

	for _, name := range bad {
		delete(cleaned, name)
	}
	rec, bad = build(cleaned)
	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: fields %s", ErrRecordInvalid, strings.Join(bad, ", "))
	}
	return rec, nil
}

// build attempts to populate a Record and returns the field names whose
// values were rejected.
func build(cleaned map[string]any) (*form.Record, []string) {
	rec := &form.Record{}
	var bad []string
	for _, name := range form.FieldNames() {
		v, ok := cleaned[name]
		if !ok {
			continue
		}
		if err := rec.Set(name, v); err != nil {
			bad = append(bad, name)
		}
	}
	return rec, bad
}

// cleanPayload converts raw values into the types the Record expects,
// dropping everything that cannot be represented faithfully.
func cleanPayload(raw map[string]any) map[string]any {
	cleaned := make(map[string]any, len(raw))
	for name, value := range raw {
		def := form.Lookup(name)
		if def == nil || value == nil {
			continue
		}

		switch def.Kind {
		case form.KindShortText, form.KindLongText:
			s, ok := coerceText(value)
			if !ok {
				continue
			}
			cleaned[name] = s
		case form.KindEnum:
			s, ok := coerceText(value)
			if !ok || !form.AllowedChoice(name, s) {
				continue
			}
			cleaned[name] = s
		case form.KindDate:
			s, ok := coerceText(value)
			if !ok {
				continue
			}
			t, okd := ParseDate(s)
			if !okd {
				continue
			}
			cleaned[name] = t
		case form.KindAmountJPY:
			n, ok := coerceAmount(value)
			if !ok || n == 0 {
				continue
			}
			cleaned[name] = n
		case form.KindMultiChoice:
			vs := coerceChoiceList(name, value)
			if len(vs) == 0 {
				continue
			}
			cleaned[name] = vs
		}
	}
	return cleaned
}

// coerceText turns a scalar or list into trimmed text. Lists become
// newline-joined text, skipping blank items.
func coerceText(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		s := strings.TrimSpace(v)
		return s, s != ""
	case []any:
		var parts []string
		for _, item := range v {
			s := strings.TrimSpace(fmt.Sprint(item))
			if s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, "\n"), true
	case []string:
		var parts []string
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, "\n"), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int, int64:
		return fmt.Sprint(v), true
	}
	return "", false
}

func coerceAmount(value any) (int64, bool) {
	switch v := value.(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		return AmountJPY(v)
	}
	return 0, false
}

// coerceChoiceList keeps list order and filters to the field's vocabulary.
func coerceChoiceList(name string, value any) []string {
	var items []string
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
	case []string:
		items = v
	case string:
		// A single selection may arrive as a bare string.
		items = []string{v}
	default:
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, item := range items {
		s := strings.TrimSpace(item)
		if s == "" || seen[s] || !form.AllowedChoice(name, s) {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

var (
	amountManPattern   = regexp.MustCompile(`(\d+)\s*万\s*円?`)
	amountYenPattern   = regexp.MustCompile(`(\d+)\s*円`)
	amountDigitPattern = regexp.MustCompile(`^\d+$`)
)

// AmountJPY parses a Japanese monetary string into integer yen.
//
//	"350万円"      -> 3500000
//	"3,500,000円"  -> 3500000
//	"2500000"      -> 2500000
//
// Unrecognized input returns (0, false); callers drop the field rather than
// defaulting to zero.
func AmountJPY(text string) (int64, bool) {
	t := normalizeDigits(strings.TrimSpace(text))
	t = strings.ReplaceAll(t, ",", "")
	if t == "" {
		return 0, false
	}

	if m := amountManPattern.FindStringSubmatch(t); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return n * 10_000, true
	}
	if m := amountYenPattern.FindStringSubmatch(t); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	if amountDigitPattern.MatchString(t) {
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

var jpDatePattern = regexp.MustCompile(`^(\d{4})年(\d{1,2})月(\d{1,2})日$`)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006/1/2",
	"2006.01.02",
}

// ParseDate parses ISO, slash, and Japanese era-free date strings.
// Unparseable input returns (zero, false).
func ParseDate(text string) (time.Time, bool) {
	s := normalizeDigits(strings.TrimSpace(text))
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if m := jpDatePattern.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// normalizeDigits folds full-width digits to ASCII so meeting notes typed in
// Japanese IME produce the same values as half-width input.
func normalizeDigits(s string) string {
	if !strings.ContainsAny(s, "０１２３４５６７８９") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '０' && r <= '９' {
			r = '0' + (r - '０')
		}
		b.WriteRune(r)
	}
	return b.String()
}
