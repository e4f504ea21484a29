// internal/rules/coercion.go
package rules

import (
	"encoding/json"
	"reflect"
)

/*
 * Value normalization for condition evaluation.
 *
 * Record values arrive from several suppliers: the mailbox parser (int64
 * sizes, []string recipient lists), JSON rule files (float64, []any), and
 * the gRPC API (structpb, float64 and []any). Normalization maps these onto
 * three comparison domains without ever converting between them:
 *
 *   - number: every Go integer and float kind plus json.Number
 *   - text: string
 *   - list: []any, []string, or any other slice/array
 *
 * Booleans are never numbers and numeric strings are never numbers: "10"
 * greater_than 5 is a type mismatch and evaluates false.
 *
 * Truthiness (is_empty): nil, "", false, numeric zero, and zero-length
 * lists or maps are empty.
 */

// toFloat64 converts v to float64 if it is numeric.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// asNumbers converts both values to float64. ok requires both to be numeric.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// asList returns v as []any if it is a slice or array. Strings and byte
// slices are not lists.
func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case nil:
		return nil, false
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []byte:
		return nil, false
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

// asStrings returns v as []string if it is a list whose elements are all strings.
func asStrings(v any) ([]string, bool) {
	if l, ok := v.([]string); ok {
		return l, true
	}
	l, ok := asList(v)
	if !ok {
		return nil, false
	}
	out := make([]string, len(l))
	for i, elem := range l {
		s, ok := elem.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// isEmpty reports whether v is falsy.
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	}
	if n, ok := toFloat64(v); ok {
		return n == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
