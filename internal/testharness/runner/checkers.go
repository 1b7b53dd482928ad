package runner

import (
	"fmt"

	"github.com/zyp/gdb-autotest/internal/testharness/engine"
	"github.com/zyp/gdb-autotest/pkg/gdb"
	"github.com/zyp/gdb-autotest/pkg/nrf54l"
)

// registerCheckers registers the device-profile checkers.
func (r *Runner) registerCheckers() {
	r.engine.RegisterChecker(KeyTopology, CheckTopology)
	r.engine.RegisterChecker(KeyMemoryRegions, CheckMemoryRegions)
}

// CheckTopology classifies the last scan and compares it with the
// expected state, or any of a list of states. An empty scan always fails
// with "No targets".
func CheckTopology(key string, expected any, state *engine.ExecutionState) *engine.ExpectResult {
	result := &engine.ExpectResult{Key: key, Expected: expected}

	want, err := parseStates(expected)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	raw, ok := state.Get(KeyTargets)
	names, isNames := raw.([]string)
	if !ok || !isNames {
		result.Message = "no scan result"
		return result
	}

	topo := nrf54l.Classify(names)
	result.Actual = topo.String()
	if err := topo.Check(want...); err != nil {
		result.Message = err.Error()
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("%s = %s", key, topo)
	return result
}

func parseStates(expected any) ([]nrf54l.State, error) {
	var names []any
	switch v := expected.(type) {
	case string:
		names = []any{v}
	case []any:
		names = v
	default:
		return nil, fmt.Errorf("topology: expected a state or a list of states, got %T", expected)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("topology: no states given")
	}

	states := make([]nrf54l.State, 0, len(names))
	for _, n := range names {
		s, ok := n.(string)
		if !ok {
			return nil, fmt.Errorf("topology: state %v is not a string", n)
		}
		st, err := nrf54l.ParseState(s)
		if err != nil {
			return nil, fmt.Errorf("topology: %w", err)
		}
		states = append(states, st)
	}
	return states, nil
}

// CheckMemoryRegions compares the last memory map with a list of
// {name, address, size} regions. The map must contain exactly those
// regions. The string "default" selects the nRF54L15 layout.
func CheckMemoryRegions(key string, expected any, state *engine.ExecutionState) *engine.ExpectResult {
	result := &engine.ExpectResult{Key: key, Expected: expected}

	want, err := parseRegions(expected)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	raw, ok := state.Get(KeyMemoryMap)
	m, isMap := raw.(gdb.MemoryMap)
	if !ok || !isMap {
		result.Message = "no memory map"
		return result
	}
	result.Actual = m.String()

	if err := nrf54l.CheckMemoryMap(m, want); err != nil {
		result.Message = err.Error()
		return result
	}
	result.Passed = true
	result.Message = fmt.Sprintf("%d regions match", len(want))
	return result
}

func parseRegions(expected any) ([]nrf54l.Region, error) {
	if s, ok := expected.(string); ok && s == layoutDefault {
		return nrf54l.Layout, nil
	}
	list, ok := expected.([]any)
	if !ok {
		return nil, fmt.Errorf("memory_regions: expected a list of regions, got %T", expected)
	}

	regions := make([]nrf54l.Region, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("memory_regions[%d]: expected a map, got %T", i, item)
		}
		name, _ := m["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("memory_regions[%d]: missing name", i)
		}
		addr, err := toUint64(m["address"])
		if err != nil {
			return nil, fmt.Errorf("memory_regions[%d] %s address: %w", i, name, err)
		}
		size, err := toUint64(m["size"])
		if err != nil {
			return nil, fmt.Errorf("memory_regions[%d] %s size: %w", i, name, err)
		}
		regions = append(regions, nrf54l.Region{Name: name, Address: addr, Size: size})
	}
	return regions, nil
}
