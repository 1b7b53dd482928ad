package runner

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/zyp/gdb-autotest/internal/adapter"
	"github.com/zyp/gdb-autotest/internal/testharness/engine"
	"github.com/zyp/gdb-autotest/internal/testharness/loader"
)

// registerUtilityHandlers registers actions that do not use the probe.
func (r *Runner) registerUtilityHandlers() {
	r.engine.RegisterHandler(ActionPowerCycle, r.handlePowerCycle)
	r.engine.RegisterHandler(ActionWait, r.handleWait)
}

// handlePowerCycle switches target power off and on again.
func (r *Runner) handlePowerCycle(ctx context.Context, _ *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	if err := adapter.PowerCycle(ctx, r.power); err != nil {
		return nil, Infrastructure(fmt.Errorf("power cycle: %w", err))
	}
	r.powerCycles++
	return map[string]any{KeyPowerCycles: r.powerCycles}, nil
}

// handleWait pauses for duration_ms.
func (r *Runner) handleWait(ctx context.Context, step *loader.Step, _ *engine.ExecutionState) (map[string]any, error) {
	ms := paramInt(step.Params, ParamDurationMs, 0)
	if ms < 0 {
		return nil, fmt.Errorf("wait: negative %s", ParamDurationMs)
	}

	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return map[string]any{KeyWaitedMs: ms}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// paramInt extracts an integer parameter, handling the int, int64 and
// float64 types YAML and interpolation may produce. Returns defaultVal if
// the key is missing or not numeric.
func paramInt(params map[string]any, key string, defaultVal int) int {
	v, ok := params[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case uint64:
		return int(val)
	case float64:
		return int(val)
	case string:
		if n, err := strconv.ParseInt(val, 0, 64); err == nil {
			return int(n)
		}
	}
	return defaultVal
}

// paramUint extracts a required unsigned parameter such as an address.
// Strings are parsed with base prefix, so "0x20000000" works.
func paramUint(params map[string]any, key string) (uint64, error) {
	v, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("missing %s", key)
	}
	n, err := toUint64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func paramString(params map[string]any, key, defaultVal string) string {
	if s, ok := params[key].(string); ok && s != "" {
		return s
	}
	return defaultVal
}

// toUint64 converts a YAML scalar to uint64.
func toUint64(v any) (uint64, error) {
	switch val := v.(type) {
	case int:
		if val >= 0 {
			return uint64(val), nil
		}
	case int64:
		if val >= 0 {
			return uint64(val), nil
		}
	case uint64:
		return val, nil
	case float64:
		if val >= 0 && val == float64(uint64(val)) {
			return uint64(val), nil
		}
	case string:
		return strconv.ParseUint(val, 0, 64)
	}
	return 0, fmt.Errorf("not an unsigned integer: %v", v)
}
