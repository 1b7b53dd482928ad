package nrf54l

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Access-port names reported by the probe's nRF54L driver.
const (
	NameProtectedAccessPort = "Nordic nRF54L Access Port (protected)"
	NameCore                = "Nordic nRF54L M33"
	NameAccessPort          = "Nordic nRF54L Access Port"
)

// State is the lock state implied by a scan.
type State int

const (
	// StateEmpty means the scan found no targets.
	StateEmpty State = iota
	// StateLocked means only the protected access port is visible.
	StateLocked
	// StateUnlocked means core and access port are visible.
	StateUnlocked
	// StateUnexpected is any other scan result.
	StateUnexpected
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unexpected"
	}
}

// ParseState parses a state name as written in workflow files.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "empty":
		return StateEmpty, nil
	case "locked":
		return StateLocked, nil
	case "unlocked":
		return StateUnlocked, nil
	case "unexpected":
		return StateUnexpected, nil
	}
	return 0, fmt.Errorf("unknown topology %q", s)
}

// Topology is a classified scan result.
type Topology struct {
	State State
	Names []string // the raw scan, kept for diagnostics
}

var (
	lockedScan   = []string{NameProtectedAccessPort}
	unlockedScan = []string{NameCore, NameAccessPort}
)

// Classify maps an ordered list of access-port names to a Topology.
func Classify(names []string) Topology {
	t := Topology{Names: slices.Clone(names)}
	switch {
	case len(names) == 0:
		t.State = StateEmpty
	case slices.Equal(names, lockedScan):
		t.State = StateLocked
	case slices.Equal(names, unlockedScan):
		t.State = StateUnlocked
	default:
		t.State = StateUnexpected
	}
	return t
}

// CtrlAP returns the identifier of the CTRL-AP, the access port that
// accepts mass erase regardless of lock state.
func (t Topology) CtrlAP() (int, bool) {
	switch t.State {
	case StateLocked:
		return 1, true
	case StateUnlocked:
		return 2, true
	}
	return 0, false
}

// CoreAP returns the identifier of the Cortex-M33 core access port.
func (t Topology) CoreAP() (int, bool) {
	if t.State == StateUnlocked {
		return 1, true
	}
	return 0, false
}

func (t Topology) String() string {
	if t.State == StateUnexpected {
		return fmt.Sprintf("unexpected %q", t.Names)
	}
	return t.State.String()
}

// Check returns a diagnostic error unless the topology is one of want.
// An empty scan is always an error.
func (t Topology) Check(want ...State) error {
	switch t.State {
	case StateEmpty:
		return errors.New("No targets")
	case StateUnexpected:
		if slices.Contains(want, StateUnexpected) {
			return nil
		}
		return fmt.Errorf("Unexpected scan result: %q", t.Names)
	}
	if slices.Contains(want, t.State) {
		return nil
	}
	return fmt.Errorf("Found %s nRF54L, expected %s", t.State, joinStates(want))
}

func joinStates(states []State) string {
	parts := make([]string, len(states))
	for i, s := range states {
		parts[i] = s.String()
	}
	return strings.Join(parts, " or ")
}
