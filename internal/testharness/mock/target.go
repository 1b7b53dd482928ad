// Package mock provides a simulated nRF54L target and a simulated GDB that
// speaks the machine interface to it, for testing without hardware.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/zyp/gdb-autotest/pkg/nrf54l"
)

// ImageKind is what a loadable file writes.
type ImageKind int

const (
	// ImageFirmware is an application image in RRAM that opens the debug
	// port at boot.
	ImageFirmware ImageKind = iota
	// ImageLock is a UICR image enabling access-port protection.
	ImageLock
)

// Section is one loadable section of an image.
type Section struct {
	Name    string
	Address uint64
	Size    uint64
}

// Image is a file the simulated debugger can open.
type Image struct {
	Name     string
	Kind     ImageKind
	Sections []Section
	// Entry is the address where -exec-run --start stops.
	Entry uint64
}

// FirmwareImage is the default application image.
var FirmwareImage = Image{
	Name: "nrf54l_firmware.elf",
	Kind: ImageFirmware,
	Sections: []Section{
		{Name: ".text", Address: 0x00000000, Size: 0x2a4c},
		{Name: ".ARM.exidx", Address: 0x00002a4c, Size: 0x8},
		{Name: ".data", Address: 0x00002a54, Size: 0x64},
	},
	Entry: 0x00000320,
}

// LockImage is the default UICR protection image.
var LockImage = Image{
	Name:     "nrf54l_uicr_approtect.hex",
	Kind:     ImageLock,
	Sections: []Section{{Name: ".sec1", Address: 0x00ffd000, Size: 0x8}},
}

// Faults injects misbehaviour into a Target.
type Faults struct {
	// RefuseAttach makes every attach fail.
	RefuseAttach bool

	// FailErase makes mass erase report failure.
	FailErase bool

	// KeepRRAMOnErase makes mass erase unlock the device but leave the
	// RRAM image in place.
	KeepRRAMOnErase bool

	// NoRelock keeps an erased target unlocked across power cycles.
	NoRelock bool

	// IgnoreLock makes UICR protection writes have no effect.
	IgnoreLock bool

	// ScanNames replaces the scan result with these names when non-nil.
	ScanNames []string

	// ScanGap numbers scan results from 2 instead of 1.
	ScanGap bool

	// Regions replaces the reported memory layout when non-nil.
	Regions []nrf54l.Region

	// HangOnRun makes -exec-run answer ^running without ever stopping.
	HangOnRun bool

	// TokenSkew answers every command with a wrong token.
	TokenSkew bool
}

// Target simulates the debug-access behaviour of an nRF54L15: it comes up
// locked after power-on unless RRAM holds firmware that opens the debug
// port and UICR does not enable protection. A mass erase through any AP
// clears RRAM and UICR and unlocks the device until the next power cycle.
type Target struct {
	mu sync.Mutex

	powered   bool
	unlocked  bool
	rram      string // name of the image in RRAM, empty when erased
	approtect bool
	attached  int
	memory    map[uint64]uint64

	powerCycles int
	erases      int
	history     []string

	// Faults is read on every operation and may be changed between them.
	Faults Faults
}

// NewTarget returns an unpowered, locked target with erased RRAM.
func NewTarget() *Target {
	return &Target{memory: make(map[uint64]uint64)}
}

// SetPower switches target power. Powering on re-evaluates the lock state.
func (t *Target) SetPower(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.attached = 0
	if !on {
		t.powered = false
		t.unlocked = false
		t.record("power off")
		return nil
	}
	if !t.powered {
		t.powerCycles++
	}
	t.powered = true
	t.unlocked = (t.rram != "" || t.Faults.NoRelock) && !t.approtect
	t.record("power on")
	return nil
}

// Locked reports whether the access port is protected.
func (t *Target) Locked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.powered && !t.unlocked
}

// Powered reports whether the target is powered.
func (t *Target) Powered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.powered
}

// Attached returns the attached AP, 0 when detached.
func (t *Target) Attached() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached
}

// Firmware returns the name of the image in RRAM, empty when erased.
func (t *Target) Firmware() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rram
}

// PowerCycles counts power-on transitions.
func (t *Target) PowerCycles() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.powerCycles
}

// Erases counts successful mass erases.
func (t *Target) Erases() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.erases
}

// History returns the operations performed, oldest first.
func (t *Target) History() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.history...)
}

func (t *Target) record(format string, args ...any) {
	t.history = append(t.history, fmt.Sprintf(format, args...))
}

// Scan returns the access-port names the probe would list.
func (t *Target) Scan() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scan()
}

func (t *Target) scan() []string {
	switch {
	case t.Faults.ScanNames != nil:
		return append([]string(nil), t.Faults.ScanNames...)
	case !t.powered:
		return nil
	case t.unlocked:
		return []string{nrf54l.NameCore, nrf54l.NameAccessPort}
	default:
		return []string{nrf54l.NameProtectedAccessPort}
	}
}

// Attach attaches to access port ap as numbered by the current scan.
func (t *Target) Attach(ap int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.powered {
		return ErrNotPowered
	}
	if t.Faults.RefuseAttach {
		return ErrRefused
	}
	if ap < 1 || ap > len(t.scan()) {
		return fmt.Errorf("%w: %d", ErrNoSuchAccessPort, ap)
	}
	t.attached = ap
	t.record("attach %d", ap)
	return nil
}

// Detach releases the attached AP. The probe resets the target on
// detach, which applies a freshly written UICR protection.
func (t *Target) Detach() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attached == 0 {
		return ErrNotAttached
	}
	t.attached = 0
	if t.approtect {
		t.unlocked = false
	}
	t.record("detach")
	return nil
}

// onCore reports whether the attached AP is the application core.
func (t *Target) onCore() bool {
	return t.attached == 1 && t.unlocked
}

// MassErase erases RRAM and UICR through the attached AP.
func (t *Target) MassErase() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attached == 0 {
		return ErrNotAttached
	}
	if t.Faults.FailErase {
		return ErrRefused
	}
	if !t.Faults.KeepRRAMOnErase {
		t.rram = ""
	}
	t.approtect = false
	t.unlocked = true
	t.memory = make(map[uint64]uint64)
	t.erases++
	t.record("erase")
	return nil
}

// Regions returns the memory layout visible through the core AP.
func (t *Target) Regions() ([]nrf54l.Region, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.onCore() {
		return nil, ErrNotCore
	}
	if t.Faults.Regions != nil {
		return append([]nrf54l.Region(nil), t.Faults.Regions...), nil
	}
	return append([]nrf54l.Region(nil), nrf54l.Layout...), nil
}

// Download writes img through the core AP.
func (t *Target) Download(img Image) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.onCore() {
		return ErrNotCore
	}
	switch img.Kind {
	case ImageFirmware:
		t.rram = img.Name
	case ImageLock:
		if !t.Faults.IgnoreLock {
			t.approtect = true
		}
	}
	t.record("download %s", img.Name)
	return nil
}

// Matches reports for every section of img whether target memory holds it.
func (t *Target) Matches(img Image) ([]bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.onCore() {
		return nil, ErrNotCore
	}
	ok := t.rram == img.Name
	if img.Kind == ImageLock {
		ok = t.approtect
	}
	out := make([]bool, len(img.Sections))
	for i := range out {
		out[i] = ok
	}
	return out, nil
}

// CanRun reports whether the core can start the program in RRAM.
func (t *Target) CanRun() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.onCore() {
		return ErrNotCore
	}
	if t.rram == "" {
		return fmt.Errorf("%w: no program in RRAM", ErrRefused)
	}
	t.record("run")
	return nil
}

// Read returns the word at addr, zero if never written.
func (t *Target) Read(addr uint64) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.onCore() {
		return 0, ErrNotCore
	}
	return t.memory[addr], nil
}

// Write stores value at addr.
func (t *Target) Write(addr, value uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.onCore() {
		return ErrNotCore
	}
	t.memory[addr] = value
	return nil
}
