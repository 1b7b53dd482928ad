package engine

import (
	"context"
	"testing"
)

// TestChecker_ValueInRange tests the value_in_range checker.
func TestChecker_ValueInRange(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set("value", int64(0x5a))

	tests := []struct {
		expected any
		passed   bool
	}{
		{map[string]any{"min": 0, "max": 0xff}, true},
		{[]any{0x5a, 0x5a}, true},
		{[]any{0, 0x10}, false},
		{map[string]any{"min": 0}, false},
		{[]any{1}, false},
		{[]any{-1, 0xff}, false},
		{"0..255", false},
	}

	for _, tt := range tests {
		result := CheckerValueInRange(CheckerNameValueInRange, tt.expected, state)
		if result.Passed != tt.passed {
			t.Errorf("ValueInRange(0x5a, %v) = %v, want %v (%s)", tt.expected, result.Passed, tt.passed, result.Message)
		}
	}
}

// TestChecker_ValueMissing tests register checkers after a refused read.
func TestChecker_ValueMissing(t *testing.T) {
	state := NewExecutionState(context.Background())
	if CheckerValueInRange(CheckerNameValueInRange, []any{0, 1}, state).Passed {
		t.Error("ValueInRange should fail without a value output")
	}

	state.Set("value", nil)
	result := CheckerValueBits(CheckerNameValueBits, []any{0xff, 0}, state)
	if result.Passed || result.Message != "no value read" {
		t.Errorf("ValueBits on nil value = %v (%s)", result.Passed, result.Message)
	}

	state.Set("value", int64(-1))
	if CheckerValueBits(CheckerNameValueBits, []any{0xff, 0xff}, state).Passed {
		t.Error("ValueBits should reject negative values")
	}
}

// TestChecker_ValueBits tests the value_bits checker.
func TestChecker_ValueBits(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set("value", int64(0xffffff5a))

	tests := []struct {
		expected any
		passed   bool
		message  string
	}{
		{map[string]any{"mask": 0xff, "want": 0x5a}, true, "0xffffff5a & 0xff = 0x5a, want 0x5a"},
		{map[string]any{"mask": 0xff, "want": 0x00}, false, "0xffffff5a & 0xff = 0x5a, want 0x0"},
		{[]any{0xf0, 0x5f}, true, "0xffffff5a & 0xf0 = 0x50, want 0x50"},
		{map[string]any{"want": 0x5a}, false, `missing "mask"`},
		{42, false, "want {mask, want} or [mask, want], got int"},
	}

	for _, tt := range tests {
		result := CheckerValueBits(CheckerNameValueBits, tt.expected, state)
		if result.Passed != tt.passed || result.Message != tt.message {
			t.Errorf("ValueBits(%v) = %v %q, want %v %q", tt.expected, result.Passed, result.Message, tt.passed, tt.message)
		}
	}
}

// TestChecker_TextContains tests the text_contains checker.
func TestChecker_TextContains(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set("gdb_version", "GNU gdb (Arm GNU Toolchain 13.2.rel1) 13.2.90.20231008-git")
	state.Set("probe_version", []string{"Black Magic Probe v2.0.0", "Copyright (C) 2015"})

	tests := []struct {
		name     string
		expected any
		passed   bool
	}{
		{"string output", map[string]any{"gdb_version": "GNU gdb"}, true},
		{"list output", map[string]any{"probe_version": "Black Magic"}, true},
		{"both", map[string]any{"gdb_version": "13.2", "probe_version": "v2.0.0"}, true},
		{"missing text", map[string]any{"gdb_version": "lldb"}, false},
		{"missing key", map[string]any{"openocd_version": "0.12"}, false},
		{"not a map", "GNU gdb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckerTextContains(CheckerNameTextContains, tt.expected, state)
			if result.Passed != tt.passed {
				t.Errorf("TextContains(%v) = %v, want %v (%s)", tt.expected, result.Passed, tt.passed, result.Message)
			}
		})
	}
}

// TestChecker_Default tests equality, presence and list-of-maps matching.
func TestChecker_Default(t *testing.T) {
	state := NewExecutionState(context.Background())
	state.Set("matched", true)
	state.Set("targets", []any{"Nordic nRF54L M33", "Nordic nRF54L Access Port"})
	state.Set("regions", []map[string]any{
		{"address": uint64(0), "size": uint64(1560576), "access": "flash"},
		{"address": uint64(0x20000000), "size": uint64(262144), "access": "rw"},
	})
	state.Set("nothing", nil)

	tests := []struct {
		name     string
		key      string
		expected any
		passed   bool
	}{
		{"bool equal", "matched", true, true},
		{"bool differs", "matched", false, false},
		{"missing key", "outcome", "stopped", false},
		{"present", "matched", "present", true},
		{"present but nil", "nothing", "present", false},
		{"list equal", "targets", []any{"Nordic nRF54L M33", "Nordic nRF54L Access Port"}, true},
		{"subset maps", "regions", []any{map[string]any{"size": 1560576}, map[string]any{"access": "rw"}}, true},
		{"subset maps mismatch", "regions", []any{map[string]any{"size": 1560575}, map[string]any{"access": "rw"}}, false},
		{"subset maps length", "regions", []any{map[string]any{"size": 1560576}}, false},
		{"subset maps missing key", "regions", []any{map[string]any{"name": "RRAM"}, map[string]any{}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := defaultChecker(tt.key, tt.expected, state)
			if result.Passed != tt.passed {
				t.Errorf("defaultChecker(%s, %v) = %v, want %v (%s)", tt.key, tt.expected, result.Passed, tt.passed, result.Message)
			}
		})
	}
}

// TestToUint64 tests register value conversion.
func TestToUint64(t *testing.T) {
	for _, v := range []any{1, int32(1), int64(1), uint(1), uint32(1), uint64(1), float64(1)} {
		if n, ok := ToUint64(v); !ok || n != 1 {
			t.Errorf("ToUint64(%T) = %v, %v", v, n, ok)
		}
	}
	for _, v := range []any{"1", -1, int64(-1), 1.5, -2.0} {
		if _, ok := ToUint64(v); ok {
			t.Errorf("ToUint64(%v) should fail", v)
		}
	}
}
