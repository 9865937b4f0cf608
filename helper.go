// FILE: lixenwraith/phaseconf/helper.go
package phaseconf

import (
	"fmt"
	"strings"
	"time"
)

// flattenMap converts a nested document to flat dotted keys with raw string values.
// Keys holding dots are quoted; arrays become escaped comma lists.
func flattenMap(nested map[string]any, prefix string) map[string]string {
	flat := make(map[string]string)
	flattenInto(flat, nested, prefix)
	return flat
}

func flattenInto(flat map[string]string, nested map[string]any, prefix string) {
	for key, value := range nested {
		newPath := quoteSegment(key)
		if prefix != "" {
			newPath = prefix + "." + newPath
		}

		switch v := value.(type) {
		case map[string]any:
			flattenInto(flat, v, newPath)
		case map[any]any:
			converted := make(map[string]any, len(v))
			for k, sub := range v {
				converted[fmt.Sprint(k)] = sub
			}
			flattenInto(flat, converted, newPath)
		case []any:
			items := make([]string, 0, len(v))
			for _, item := range v {
				items = append(items, rawString(item))
			}
			flat[newPath] = joinList(items)
		default:
			flat[newPath] = rawString(v)
		}
	}
}

// rawString renders a decoded document scalar the way a user would have typed it
func rawString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

// setNestedValue sets a value in a nested map using a dot-notation path.
// It creates intermediate maps if they don't exist.
// If a segment exists but is not a map, it will be overwritten by a new map.
func setNestedValue(nested map[string]any, path string, value any) {
	segments := splitSegments(path)
	if len(segments) == 0 {
		return
	}
	current := nested

	for _, segment := range segments[:len(segments)-1] {
		next, exists := current[segment]
		if nextMap, isMap := next.(map[string]any); exists && isMap {
			current = nextMap
			continue
		}
		newMap := make(map[string]any)
		current[segment] = newMap
		current = newMap
	}

	current[segments[len(segments)-1]] = value
}

// joinKey appends a property segment to a rendered key prefix
func joinKey(prefix, segment string) string {
	switch {
	case prefix == "":
		return segment
	case segment == "":
		return prefix
	default:
		return prefix + "." + segment
	}
}

// isValidKeySegment checks if a single path segment is a valid TOML key part.
func isValidKeySegment(s string) bool {
	if len(s) == 0 {
		return false
	}
	// TOML bare keys are sequences of ASCII letters, ASCII digits, underscores, and dashes (A-Za-z0-9_-).
	if strings.ContainsRune(s, '.') {
		return false // Segments themselves cannot contain dots
	}

	for _, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isUnderscore := r == '_'
		isDash := r == '-'

		if !(isLetter || isDigit || isUnderscore || isDash) {
			return false
		}
	}
	return true
}
