package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// variablePattern matches {{ variable }} templates.
var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Interpolate replaces {{ variable }} placeholders in a string with values from state.
// Variables that are missing or nil are left unchanged.
func Interpolate(template string, state *ExecutionState) string {
	if state == nil {
		return template
	}

	return variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		value, ok := lookup(match, state)
		if !ok {
			return match
		}
		return valueToString(value)
	})
}

// InterpolateParams recursively interpolates all string values in a params map.
// For pure variable references (string is exactly "{{ var }}"), preserves the original type.
// For mixed content (string contains text + variables), converts to string.
// Returns a new map with interpolated values.
func InterpolateParams(params map[string]any, state *ExecutionState) map[string]any {
	if params == nil {
		return nil
	}

	result := make(map[string]any, len(params))
	for key, value := range params {
		if state == nil {
			result[key] = value
			continue
		}
		result[key] = interpolateValue(value, state)
	}
	return result
}

// Unresolved returns the names of variable references left in value after
// interpolation, in the order found.
func Unresolved(value any) []string {
	var names []string
	var walk func(v any)
	walk = func(v any) {
		switch v := v.(type) {
		case string:
			for _, m := range variablePattern.FindAllStringSubmatch(v, -1) {
				names = append(names, m[1])
			}
		case map[string]any:
			for _, val := range v {
				walk(val)
			}
		case []any:
			for _, val := range v {
				walk(val)
			}
		}
	}
	walk(value)
	return names
}

// interpolateValue recursively interpolates a single value.
func interpolateValue(value any, state *ExecutionState) any {
	switch v := value.(type) {
	case string:
		return interpolateString(v, state)

	case map[string]any:
		result := make(map[string]any, len(v))
		for k, val := range v {
			result[k] = interpolateValue(val, state)
		}
		return result

	case []any:
		result := make([]any, len(v))
		for i, val := range v {
			result[i] = interpolateValue(val, state)
		}
		return result

	default:
		return value
	}
}

// interpolateString handles string interpolation with type preservation.
// If the string is purely a single variable reference "{{ var }}", returns the actual value type.
// If it contains text mixed with variables, returns interpolated string.
func interpolateString(s string, state *ExecutionState) any {
	trimmed := strings.TrimSpace(s)

	if isPureVariableRef(trimmed) {
		if value, ok := lookup(trimmed, state); ok {
			return value
		}
		return s
	}

	return Interpolate(s, state)
}

// lookup resolves a single "{{ name }}" reference. Nil values count as unset.
func lookup(ref string, state *ExecutionState) (any, bool) {
	m := variablePattern.FindStringSubmatch(ref)
	if m == nil {
		return nil, false
	}
	value, exists := state.Outputs[m[1]]
	if !exists || value == nil {
		return nil, false
	}
	return value, true
}

// isPureVariableRef checks if a string is exactly a single variable reference.
func isPureVariableRef(s string) bool {
	matches := variablePattern.FindAllStringIndex(s, -1)
	if len(matches) != 1 {
		return false
	}
	return matches[0][0] == 0 && matches[0][1] == len(s)
}

// valueToString converts a value to its string representation.
func valueToString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		// Format without trailing zeros for whole numbers
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
