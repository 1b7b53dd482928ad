package engine

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
)

// ToUint64 converts a register value or a YAML number to uint64. Negative
// and fractional numbers are rejected.
func ToUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int:
		return uint64(n), n >= 0
	case int64:
		return uint64(n), n >= 0
	case int32:
		return uint64(n), n >= 0
	case float64:
		return uint64(n), n >= 0 && n == math.Trunc(n) && n <= math.MaxUint64
	default:
		return 0, false
	}
}

// registerValue fetches the "value" output written by peek and poke.
func registerValue(key string, expected any, state *ExecutionState) (uint64, *ExpectResult) {
	actual, exists := state.Get("value")
	if !exists || actual == nil {
		return 0, &ExpectResult{Key: key, Expected: expected, Message: "no value read"}
	}
	v, ok := ToUint64(actual)
	if !ok {
		return 0, &ExpectResult{Key: key, Expected: expected, Actual: actual,
			Message: fmt.Sprintf("value %v is not a register value", actual)}
	}
	return v, nil
}

// pair extracts two numbers given either as a map with keys a and b or as a
// two element list.
func pair(expected any, a, b string) (uint64, uint64, error) {
	var x, y any
	switch e := expected.(type) {
	case map[string]any:
		var okA, okB bool
		if x, okA = e[a]; !okA {
			return 0, 0, fmt.Errorf("missing %q", a)
		}
		if y, okB = e[b]; !okB {
			return 0, 0, fmt.Errorf("missing %q", b)
		}
	case []any:
		if len(e) != 2 {
			return 0, 0, fmt.Errorf("want [%s, %s], got %d elements", a, b, len(e))
		}
		x, y = e[0], e[1]
	default:
		return 0, 0, fmt.Errorf("want {%s, %s} or [%s, %s], got %T", a, b, a, b, expected)
	}
	nx, okX := ToUint64(x)
	ny, okY := ToUint64(y)
	if !okX || !okY {
		return 0, 0, fmt.Errorf("%s and %s must be unsigned integers", a, b)
	}
	return nx, ny, nil
}

// CheckerValueInRange passes when the register value read by the step lies
// within [min, max].
func CheckerValueInRange(key string, expected any, state *ExecutionState) *ExpectResult {
	v, res := registerValue(key, expected, state)
	if res != nil {
		return res
	}
	lo, hi, err := pair(expected, "min", "max")
	if err != nil {
		return &ExpectResult{Key: key, Expected: expected, Actual: v, Message: err.Error()}
	}
	passed := v >= lo && v <= hi
	return &ExpectResult{
		Key: key, Expected: expected, Actual: v, Passed: passed,
		Message: fmt.Sprintf("%#x in [%#x, %#x] = %v", v, lo, hi, passed),
	}
}

// CheckerValueBits passes when the bits of the register value selected by
// mask equal those of want. APPROTECT and similar fields are checked this
// way.
func CheckerValueBits(key string, expected any, state *ExecutionState) *ExpectResult {
	v, res := registerValue(key, expected, state)
	if res != nil {
		return res
	}
	mask, want, err := pair(expected, "mask", "want")
	if err != nil {
		return &ExpectResult{Key: key, Expected: expected, Actual: v, Message: err.Error()}
	}
	got := v & mask
	passed := got == want&mask
	return &ExpectResult{
		Key: key, Expected: expected, Actual: v, Passed: passed,
		Message: fmt.Sprintf("%#x & %#x = %#x, want %#x", v, mask, got, want&mask),
	}
}

// CheckerTextContains checks that outputs contain substrings. Expected maps
// output keys to the substring their text must contain; list outputs pass
// when any element contains it.
func CheckerTextContains(key string, expected any, state *ExecutionState) *ExpectResult {
	want, ok := expected.(map[string]any)
	if !ok {
		return &ExpectResult{
			Key: key, Expected: expected, Passed: false,
			Message: "expected must map output keys to substrings",
		}
	}

	for _, name := range slices.Sorted(maps.Keys(want)) {
		sub := fmt.Sprintf("%v", want[name])
		actual, exists := state.Get(name)
		if !exists {
			return &ExpectResult{
				Key: key, Expected: expected, Passed: false,
				Message: fmt.Sprintf("key %q not found in outputs", name),
			}
		}
		if !textContains(actual, sub) {
			return &ExpectResult{
				Key: key, Expected: expected, Actual: actual, Passed: false,
				Message: fmt.Sprintf("%s: %q not found in %v", name, sub, actual),
			}
		}
	}

	return &ExpectResult{
		Key: key, Expected: expected, Passed: true,
		Message: fmt.Sprintf("all %d outputs contain their text", len(want)),
	}
}

func textContains(actual any, sub string) bool {
	switch a := actual.(type) {
	case []string:
		return slices.ContainsFunc(a, func(s string) bool { return strings.Contains(s, sub) })
	case []any:
		return slices.ContainsFunc(a, func(v any) bool { return strings.Contains(fmt.Sprintf("%v", v), sub) })
	default:
		return strings.Contains(fmt.Sprintf("%v", a), sub)
	}
}
