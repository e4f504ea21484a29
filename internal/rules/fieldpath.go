// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/inboxkeeper/internal/types"
)

/*
 * Field resolution for records.
 *
 * Conditions name a record field. Most fields are top-level ("subject",
 * "size"), but the mailbox supplier also exposes nested structures such as
 * "headers" (map of lower-cased header name to value), addressed with a
 * dotted path: "headers.list-unsubscribe", "to.0".
 *
 * Resolution order:
 *   1. Exact top-level key (a key containing dots wins over a path)
 *   2. Dotted traversal through maps and, with numeric segments, lists
 *
 * A path that leaves the structure (missing key, index out of range, scalar
 * with remaining segments) is not found; the enclosing condition is false.
 */

// FieldPath is a pre-split field reference.
type FieldPath struct {
	Raw      string
	Segments []string // nil when Raw has no dots
}

// ParseFieldPath splits a field name on dots.
// Returns ok=false for empty names or paths deeper than MaxPathDepth.
func ParseFieldPath(field string) (FieldPath, bool) {
	if field == "" {
		return FieldPath{}, false
	}
	fp := FieldPath{Raw: field}
	if strings.Contains(field, ".") {
		fp.Segments = strings.Split(field, ".")
		if len(fp.Segments) > types.MaxPathDepth {
			return FieldPath{}, false
		}
	}
	return fp, true
}

// Resolve looks up the field value in record. found is false if the field
// is absent; a present nil value is found.
func Resolve(record types.Record, path FieldPath) (value any, found bool) {
	if v, ok := record.Lookup(path.Raw); ok {
		return v, true
	}
	if len(path.Segments) == 0 {
		return nil, false
	}
	return resolveRecursive(path.Segments, map[string]any(record))
}

// resolveRecursive walks maps by key and lists by numeric index.
func resolveRecursive(segments []string, current any) (any, bool) {
	if len(segments) == 0 {
		return current, true
	}
	seg := segments[0]
	remaining := segments[1:]

	switch v := current.(type) {
	case types.Record:
		next, ok := v[seg]
		if !ok {
			return nil, false
		}
		return resolveRecursive(remaining, next)
	case map[string]any:
		next, ok := v[seg]
		if !ok {
			return nil, false
		}
		return resolveRecursive(remaining, next)
	case map[string]string:
		next, ok := v[seg]
		if !ok {
			return nil, false
		}
		return resolveRecursive(remaining, next)
	}

	list, ok := asList(current)
	if !ok {
		// Scalar value but path continues
		return nil, false
	}
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 || idx >= len(list) {
		return nil, false
	}
	return resolveRecursive(remaining, list[idx])
}
