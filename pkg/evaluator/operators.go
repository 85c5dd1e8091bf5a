package evaluator

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Operator compares a context value with a rule value.
type Operator string

const (
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "ne"
	OpLessThan     Operator = "lt"
	OpGreaterThan  Operator = "gt"
	OpLessEqual    Operator = "le"
	OpGreaterEqual Operator = "ge"
	OpContains     Operator = "contains"
	OpMatches      Operator = "matches"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
	OpIn           Operator = "in"
	OpNotIn        Operator = "not_in"
	OpExists       Operator = "exists"
)

type compareFunc func(actual, expected any) (bool, error)

var operators = map[Operator]compareFunc{
	OpEqual:        equal,
	OpNotEqual:     negate(equal),
	OpLessThan:     numeric(func(a, b float64) bool { return a < b }),
	OpGreaterThan:  numeric(func(a, b float64) bool { return a > b }),
	OpLessEqual:    numeric(func(a, b float64) bool { return a <= b }),
	OpGreaterEqual: numeric(func(a, b float64) bool { return a >= b }),
	OpContains:     contains,
	OpMatches:      matches,
	OpStartsWith:   stringOp("starts_with", strings.HasPrefix),
	OpEndsWith:     stringOp("ends_with", strings.HasSuffix),
	OpIn:           in,
	OpNotIn:        negate(in),
}

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	if op == OpExists {
		return true
	}
	_, ok := operators[op]
	return ok
}

// compare applies op. present reports whether the field existed in the
// context; only exists inspects a missing field, every other operator fails.
func compare(op Operator, actual any, present bool, expected any) (bool, error) {
	if op == OpExists {
		want := true
		if expected != nil {
			b, ok := expected.(bool)
			if !ok {
				return false, fmt.Errorf("exists operator requires a boolean value, got %T", expected)
			}
			want = b
		}
		return present == want, nil
	}
	fn, ok := operators[op]
	if !ok {
		return false, fmt.Errorf("unknown operator %q", op)
	}
	if !present {
		return false, nil
	}
	return fn(actual, expected)
}

func negate(fn compareFunc) compareFunc {
	return func(actual, expected any) (bool, error) {
		ok, err := fn(actual, expected)
		return !ok, err
	}
}

func equal(actual, expected any) (bool, error) {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil, nil
	}
	if a, err := toFloat(actual); err == nil {
		if b, err := toFloat(expected); err == nil {
			return a == b, nil
		}
	}
	if at, ok := actual.(time.Time); ok {
		if s, ok := expected.(string); ok {
			bt, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return false, nil
			}
			return at.Equal(bt), nil
		}
	}
	return reflect.DeepEqual(actual, expected), nil
}

func numeric(cmp func(a, b float64) bool) compareFunc {
	return func(actual, expected any) (bool, error) {
		a, err := toFloat(actual)
		if err != nil {
			return false, fmt.Errorf("context value: %w", err)
		}
		b, err := toFloat(expected)
		if err != nil {
			return false, fmt.Errorf("rule value: %w", err)
		}
		return cmp(a, b), nil
	}
}

func contains(actual, expected any) (bool, error) {
	if s, ok := actual.(string); ok {
		return strings.Contains(s, fmt.Sprint(expected)), nil
	}
	list, ok := asList(actual)
	if !ok {
		return false, fmt.Errorf("contains requires a string or list context value, got %T", actual)
	}
	for _, item := range list {
		if eq, _ := equal(item, expected); eq {
			return true, nil
		}
	}
	return false, nil
}

func in(actual, expected any) (bool, error) {
	list, ok := asList(expected)
	if !ok {
		return false, fmt.Errorf("in requires a list rule value, got %T", expected)
	}
	for _, item := range list {
		if eq, _ := equal(actual, item); eq {
			return true, nil
		}
	}
	return false, nil
}

func stringOp(name string, fn func(s, affix string) bool) compareFunc {
	return func(actual, expected any) (bool, error) {
		s, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("%s requires a string context value, got %T", name, actual)
		}
		affix, ok := expected.(string)
		if !ok {
			return false, fmt.Errorf("%s requires a string rule value, got %T", name, expected)
		}
		return fn(s, affix), nil
	}
}

var patterns sync.Map // string -> *regexp.Regexp

func matches(actual, expected any) (bool, error) {
	pattern, ok := expected.(string)
	if !ok {
		return false, fmt.Errorf("matches requires a string pattern, got %T", expected)
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(fmt.Sprint(actual)), nil
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	patterns.Store(pattern, re)
	return re, nil
}

func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("cannot use %T as a number", v)
	}
}
