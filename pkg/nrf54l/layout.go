package nrf54l

import (
	"fmt"
	"maps"

	"github.com/zyp/gdb-autotest/pkg/gdb"
)

// Region is an expected memory region.
type Region struct {
	Name    string `yaml:"name" json:"name"`
	Address uint64 `yaml:"address" json:"address"`
	Size    uint64 `yaml:"size" json:"size"`
}

// Layout is the memory map the probe reports for an unlocked nRF54L15.
var Layout = []Region{
	{Name: "RRAM", Address: 0x00000000, Size: 1524 * 1024},
	{Name: "UICR", Address: 0x00ffd000, Size: 0x1000},
	{Name: "RAM", Address: 0x20000000, Size: 256 * 1024},
}

// CheckMemoryMap verifies that m holds exactly the regions in want, with
// the given sizes. The error names the first offending region.
func CheckMemoryMap(m gdb.MemoryMap, want []Region) error {
	rest := maps.Clone(m)
	for _, r := range want {
		got, ok := rest[r.Address]
		if !ok {
			return fmt.Errorf("%s not in memory map", r.Name)
		}
		if got.Size != r.Size {
			return fmt.Errorf("Unexpected %s size: %d", r.Name, got.Size)
		}
		delete(rest, r.Address)
	}
	if len(rest) > 0 {
		return fmt.Errorf("Unexpected regions in memory map: %s", rest)
	}
	return nil
}
