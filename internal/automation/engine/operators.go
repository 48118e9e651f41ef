// Package engine implements the condition-evaluation core: the operator
// registry, the recursive condition evaluator with its memo cache, and the
// field schema used to validate authored conditions.
package engine

import (
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// OperatorFunc is a pure predicate over a resolved field value and the
// condition's literal value. Deterministic given its inputs and the
// evaluation instant (date operators consult the wall clock).
type OperatorFunc func(fieldValue, expectedValue any) bool

// Operator categories, used by the field schema to judge suitability.
const (
	CategoryComparison = "comparison"
	CategoryString     = "string"
	CategoryArray      = "array"
	CategoryNull       = "null"
	CategoryDate       = "date"
	CategoryNumeric    = "numeric"
	CategoryType       = "type"
)

// Registry maps operator names to predicate functions. Unknown names degrade
// to "does not match" with a warning; evaluation never panics on a
// misconfigured automation.
type Registry struct {
	logger *slog.Logger
}

// NewRegistry creates an operator registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Apply runs the named operator. An unregistered name returns false.
func (r *Registry) Apply(name string, fieldValue, expectedValue any) bool {
	fn, ok := operators[name]
	if !ok {
		r.logger.Warn("unknown condition operator", "operator", name)
		return false
	}
	return fn(fieldValue, expectedValue)
}

// Has reports whether the operator name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := operators[name]
	return ok
}

// Category returns the category of a registered operator.
func (r *Registry) Category(name string) (string, bool) {
	c, ok := operatorCategories[name]
	return c, ok
}

// IsUnary reports whether the operator ignores the condition value.
func (r *Registry) IsUnary(name string) bool {
	return unaryOperators[name]
}

// Names returns all registered operator names grouped by category.
func (r *Registry) Names() map[string][]string {
	grouped := make(map[string][]string)
	for name, cat := range operatorCategories {
		grouped[cat] = append(grouped[cat], name)
	}
	return grouped
}

var operators = map[string]OperatorFunc{
	// Comparison
	"equals":                func(a, b any) bool { return looseEqual(a, b) },
	"not_equals":            func(a, b any) bool { return !looseEqual(a, b) },
	"greater_than":          func(a, b any) bool { return compareNumbers(a, b, func(x, y float64) bool { return x > y }) },
	"less_than":             func(a, b any) bool { return compareNumbers(a, b, func(x, y float64) bool { return x < y }) },
	"greater_than_or_equal": func(a, b any) bool { return compareNumbers(a, b, func(x, y float64) bool { return x >= y }) },
	"less_than_or_equal":    func(a, b any) bool { return compareNumbers(a, b, func(x, y float64) bool { return x <= y }) },

	// String (case-insensitive, matching the authoring surface's contract)
	"contains":     func(a, b any) bool { return strings.Contains(lowerString(a), lowerString(b)) },
	"not_contains": func(a, b any) bool { return !strings.Contains(lowerString(a), lowerString(b)) },
	"starts_with":  func(a, b any) bool { return strings.HasPrefix(lowerString(a), lowerString(b)) },
	"ends_with":    func(a, b any) bool { return strings.HasSuffix(lowerString(a), lowerString(b)) },
	"matches_regex": func(a, b any) bool {
		re, err := regexp.Compile(toString(b))
		if err != nil {
			return false
		}
		return re.MatchString(toString(a))
	},
	"not_matches_regex": func(a, b any) bool {
		re, err := regexp.Compile(toString(b))
		if err != nil {
			return true
		}
		return !re.MatchString(toString(a))
	},

	// Array
	"in": func(a, b any) bool {
		list, ok := toSlice(b)
		return ok && sliceContains(list, a)
	},
	"not_in": func(a, b any) bool {
		list, ok := toSlice(b)
		return ok && !sliceContains(list, a)
	},
	"contains_any": func(a, b any) bool {
		have, okA := toSlice(a)
		want, okB := toSlice(b)
		if !okA || !okB {
			return false
		}
		for _, w := range want {
			if sliceContains(have, w) {
				return true
			}
		}
		return false
	},
	"contains_all": func(a, b any) bool {
		have, okA := toSlice(a)
		want, okB := toSlice(b)
		if !okA || !okB {
			return false
		}
		for _, w := range want {
			if !sliceContains(have, w) {
				return false
			}
		}
		return true
	},
	"array_length_equals":       func(a, b any) bool { return compareArrayLength(a, b, func(n, m float64) bool { return n == m }) },
	"array_length_greater_than": func(a, b any) bool { return compareArrayLength(a, b, func(n, m float64) bool { return n > m }) },
	"array_length_less_than":    func(a, b any) bool { return compareArrayLength(a, b, func(n, m float64) bool { return n < m }) },

	// Null / empty
	"is_empty":     func(a, _ any) bool { return isEmpty(a) },
	"is_not_empty": func(a, _ any) bool { return !isEmpty(a) },
	"is_null":      func(a, _ any) bool { return a == nil },
	"is_not_null":  func(a, _ any) bool { return a != nil },

	// Date (relative operators use floored whole units against the wall
	// clock at evaluation time)
	"date_equals": func(a, b any) bool {
		ta, okA := toTime(a)
		tb, okB := toTime(b)
		if !okA || !okB {
			return false
		}
		ya, ma, da := ta.Date()
		yb, mb, db := tb.Date()
		return ya == yb && ma == mb && da == db
	},
	"date_before":      func(a, b any) bool { return compareTimes(a, b, func(x, y time.Time) bool { return x.Before(y) }) },
	"date_after":       func(a, b any) bool { return compareTimes(a, b, func(x, y time.Time) bool { return x.After(y) }) },
	"date_on_or_before": func(a, b any) bool { return compareTimes(a, b, func(x, y time.Time) bool { return !x.After(y) }) },
	"date_on_or_after":  func(a, b any) bool { return compareTimes(a, b, func(x, y time.Time) bool { return !x.Before(y) }) },
	"days_ago":              func(a, b any) bool { return compareUnitsAgo(a, b, 24*time.Hour, func(n, m float64) bool { return n == m }) },
	"days_ago_greater_than": func(a, b any) bool { return compareUnitsAgo(a, b, 24*time.Hour, func(n, m float64) bool { return n > m }) },
	"days_ago_less_than":    func(a, b any) bool { return compareUnitsAgo(a, b, 24*time.Hour, func(n, m float64) bool { return n < m }) },
	"hours_ago":              func(a, b any) bool { return compareUnitsAgo(a, b, time.Hour, func(n, m float64) bool { return n == m }) },
	"hours_ago_greater_than": func(a, b any) bool { return compareUnitsAgo(a, b, time.Hour, func(n, m float64) bool { return n > m }) },
	"hours_ago_less_than":    func(a, b any) bool { return compareUnitsAgo(a, b, time.Hour, func(n, m float64) bool { return n < m }) },

	// Numeric range (inclusive bounds; expected value is a [low, high] pair)
	"between":     func(a, b any) bool { return inRange(a, b, true) },
	"not_between": func(a, b any) bool { return inRange(a, b, false) },

	// Type checks
	"is_string":  func(a, _ any) bool { _, ok := a.(string); return ok },
	"is_number":  func(a, _ any) bool { return isNumber(a) },
	"is_boolean": func(a, _ any) bool { _, ok := a.(bool); return ok },
	"is_array":   func(a, _ any) bool { _, ok := toSlice(a); return ok },
	"is_object":  func(a, _ any) bool { _, ok := a.(map[string]any); return ok },
}

var operatorCategories = map[string]string{
	"equals": CategoryComparison, "not_equals": CategoryComparison,
	"greater_than": CategoryComparison, "less_than": CategoryComparison,
	"greater_than_or_equal": CategoryComparison, "less_than_or_equal": CategoryComparison,

	"contains": CategoryString, "not_contains": CategoryString,
	"starts_with": CategoryString, "ends_with": CategoryString,
	"matches_regex": CategoryString, "not_matches_regex": CategoryString,

	"in": CategoryArray, "not_in": CategoryArray,
	"contains_any": CategoryArray, "contains_all": CategoryArray,
	"array_length_equals": CategoryArray, "array_length_greater_than": CategoryArray,
	"array_length_less_than": CategoryArray,

	"is_empty": CategoryNull, "is_not_empty": CategoryNull,
	"is_null": CategoryNull, "is_not_null": CategoryNull,

	"date_equals": CategoryDate, "date_before": CategoryDate, "date_after": CategoryDate,
	"date_on_or_before": CategoryDate, "date_on_or_after": CategoryDate,
	"days_ago": CategoryDate, "days_ago_greater_than": CategoryDate, "days_ago_less_than": CategoryDate,
	"hours_ago": CategoryDate, "hours_ago_greater_than": CategoryDate, "hours_ago_less_than": CategoryDate,

	"between": CategoryNumeric, "not_between": CategoryNumeric,

	"is_string": CategoryType, "is_number": CategoryType, "is_boolean": CategoryType,
	"is_array": CategoryType, "is_object": CategoryType,
}

var unaryOperators = map[string]bool{
	"is_empty": true, "is_not_empty": true, "is_null": true, "is_not_null": true,
	"is_string": true, "is_number": true, "is_boolean": true, "is_array": true, "is_object": true,
}

// Coercion helpers. Event payloads arrive as decoded JSON, so the common
// shapes are float64, string, bool, []any and map[string]any; other numeric
// widths show up from in-process callers.

func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int32, int64, uint:
		return true
	}
	return false
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}

func lowerString(v any) string {
	return strings.ToLower(toString(v))
}

func toSlice(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(val))
		for i, f := range val {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	case float64:
		// Millisecond epoch, the serialization used by upstream payloads.
		return time.UnixMilli(int64(val)), true
	case int64:
		return time.UnixMilli(val), true
	default:
		return time.Time{}, false
	}
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, okA := toFloatStrict(a); okA {
		if fb, okB := toFloatStrict(b); okB {
			return fa == fb
		}
		return false
	}
	if sa, okA := a.(string); okA {
		if sb, okB := b.(string); okB {
			return sa == sb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// toFloatStrict coerces numeric types only; strings stay strings so that
// equals("5", 5) is false while greater_than("5", 4) still works.
func toFloatStrict(v any) (float64, bool) {
	if _, isString := v.(string); isString {
		return 0, false
	}
	return toFloat(v)
}

func compareNumbers(a, b any, cmp func(x, y float64) bool) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if !okA || !okB {
		return false
	}
	return cmp(fa, fb)
}

func compareTimes(a, b any, cmp func(x, y time.Time) bool) bool {
	ta, okA := toTime(a)
	tb, okB := toTime(b)
	if !okA || !okB {
		return false
	}
	return cmp(ta, tb)
}

func compareUnitsAgo(a, b any, unit time.Duration, cmp func(n, m float64) bool) bool {
	ta, okA := toTime(a)
	n, okB := toFloat(b)
	if !okA || !okB {
		return false
	}
	elapsed := float64(time.Since(ta) / unit)
	return cmp(elapsed, n)
}

func compareArrayLength(a, b any, cmp func(n, m float64) bool) bool {
	list, ok := toSlice(a)
	if !ok {
		return false
	}
	n, ok := toFloat(b)
	if !ok {
		return false
	}
	return cmp(float64(len(list)), n)
}

func sliceContains(list []any, item any) bool {
	for _, v := range list {
		if looseEqual(v, item) {
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	if list, ok := toSlice(v); ok {
		return len(list) == 0
	}
	return false
}

func inRange(a, b any, want bool) bool {
	bounds, ok := toSlice(b)
	if !ok || len(bounds) != 2 {
		return false
	}
	n, okN := toFloat(a)
	low, okL := toFloat(bounds[0])
	high, okH := toFloat(bounds[1])
	if !okN || !okL || !okH {
		return false
	}
	within := n >= low && n <= high
	if want {
		return within
	}
	return !within
}
