package gdb

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// memoryBanner is printed by "info mem" when the map came from the target.
const memoryBanner = "Using memory regions provided by the target."

// MemoryRegion is one row of the debugger's memory map.
type MemoryRegion struct {
	Address uint64
	Size    uint64
	Access  string // flash, rw, ro, ...
	Attrs   string // remaining columns, e.g. "blocksize 0x1000 nocache"
}

func (r MemoryRegion) String() string {
	return fmt.Sprintf("%#x+%#x %s", r.Address, r.Size, r.Access)
}

// MemoryMap maps region start addresses to regions.
type MemoryMap map[uint64]MemoryRegion

// Addresses returns the region start addresses in ascending order.
func (m MemoryMap) Addresses() []uint64 {
	return slices.Sorted(maps.Keys(m))
}

func (m MemoryMap) String() string {
	parts := make([]string, 0, len(m))
	for _, addr := range m.Addresses() {
		parts = append(parts, m[addr].String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ParseMemoryMap decodes the console output of "info mem".
//
// An optional banner line is dropped, then the column header. Every
// remaining line must hold at least six fields (number, enabled, low,
// high, access, attributes). Any malformed line fails the whole parse.
func ParseMemoryMap(lines []string) (MemoryMap, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("memory map: no output")
	}
	if lines[0] == memoryBanner {
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("memory map: missing header")
	}

	m := MemoryMap{}
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			return nil, fmt.Errorf("memory map: malformed line %q", line)
		}
		low, err := parseHex(fields[2])
		if err != nil {
			return nil, fmt.Errorf("memory map: low address in %q: %w", line, err)
		}
		high, err := parseHex(fields[3])
		if err != nil {
			return nil, fmt.Errorf("memory map: high address in %q: %w", line, err)
		}
		if high < low {
			return nil, fmt.Errorf("memory map: region ends before it starts in %q", line)
		}
		if _, dup := m[low]; dup {
			return nil, fmt.Errorf("memory map: duplicate region at %#x", low)
		}
		m[low] = MemoryRegion{
			Address: low,
			Size:    high - low,
			Access:  fields[4],
			Attrs:   strings.Join(fields[5:], " "),
		}
	}
	return m, nil
}

func parseHex(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strconv.ParseUint(s, 16, 64)
}
