package bmp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zyp/gdb-autotest/pkg/mi"
)

var scanHeader = []string{"Target voltage: 3.3V", "Available Targets:", "No. Att Driver"}

func scanOutput(lines ...string) []string {
	return append(append([]string(nil), scanHeader...), lines...)
}

func TestParseScan(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  []string
	}{
		{"no output", nil, []string{}},
		{"header only", scanOutput(), []string{}},
		{"locked", scanOutput("1      Nordic nRF54L Access Port (protected)"),
			[]string{"Nordic nRF54L Access Port (protected)"}},
		{"unlocked", scanOutput("1      Nordic nRF54L M33", "2\tNordic nRF54L Access Port"),
			[]string{"Nordic nRF54L M33", "Nordic nRF54L Access Port"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScan(tt.lines)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Accepted listings always carry identifiers 1..N in order.
func TestParseScan_ContiguousIdentifiers(t *testing.T) {
	for n := 1; n <= 6; n++ {
		var lines []string
		for i := 1; i <= n; i++ {
			lines = append(lines, fmt.Sprintf("%d AP%d", i, i))
		}
		names, err := ParseScan(scanOutput(lines...))
		require.NoError(t, err)
		require.Len(t, names, n)

		// Shifting or swapping any identifier must be rejected.
		for i := range lines {
			bad := append([]string(nil), lines...)
			bad[i] = fmt.Sprintf("%d AP", i+2)
			_, err := ParseScan(scanOutput(bad...))
			require.Error(t, err, "n=%d i=%d", n, i)

			var se *ScanError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, i+1, se.Want)
			assert.True(t, errors.Is(err, mi.ErrProtocol))
		}
	}
}

func TestParseScan_Malformed(t *testing.T) {
	for _, line := range []string{"x Nordic", "1", "Nordic nRF54L M33"} {
		_, err := ParseScan(scanOutput(line))
		assert.ErrorIs(t, err, mi.ErrProtocol, line)
	}
}
