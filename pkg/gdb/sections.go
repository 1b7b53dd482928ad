package gdb

import "strings"

// sectionMatched ends every line "compare-sections" prints for a section
// whose target contents equal the loaded file.
const sectionMatched = ": matched."

// ParseCompareSections reports whether every line of compare-sections
// output reports a match. No output at all counts as a mismatch.
func ParseCompareSections(lines []string) bool {
	if len(lines) == 0 {
		return false
	}
	for _, line := range lines {
		if !strings.HasSuffix(line, sectionMatched) {
			return false
		}
	}
	return true
}
