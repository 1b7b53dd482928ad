package bmp

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/zyp/gdb-autotest/pkg/mi"
)

// scanHeaderLines precede the target list in "swd_scan" output:
// target voltage, the scan banner and the "No. Att Driver" column header.
const scanHeaderLines = 3

// ScanError reports a scan listing whose identifiers are not 1..N in
// order. It wraps mi.ErrProtocol.
type ScanError struct {
	Line string
	Want int
	Got  int
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("bmp: scan identifiers not contiguous: got %d, want %d in %q", e.Got, e.Want, e.Line)
}

func (e *ScanError) Unwrap() error { return mi.ErrProtocol }

// ParseScan decodes the target-stream lines of "monitor swd_scan" into
// access-port names. The name at index i has identifier i+1.
func ParseScan(lines []string) ([]string, error) {
	if len(lines) <= scanHeaderLines {
		return []string{}, nil
	}
	names := make([]string, 0, len(lines)-scanHeaderLines)
	for i, line := range lines[scanHeaderLines:] {
		idField, name := splitField(line)
		id, err := strconv.Atoi(idField)
		if err != nil || name == "" {
			return nil, fmt.Errorf("bmp: scan line %q: %w", line, mi.ErrProtocol)
		}
		if id != i+1 {
			return nil, &ScanError{Line: line, Want: i + 1, Got: id}
		}
		names = append(names, name)
	}
	return names, nil
}

// splitField splits line at its first run of whitespace.
func splitField(line string) (string, string) {
	line = strings.TrimSpace(line)
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}
