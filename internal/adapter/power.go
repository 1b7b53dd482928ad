package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	plog "github.com/zyp/gdb-autotest/pkg/log"
)

// PowerSwitch turns target power on and off.
type PowerSwitch interface {
	SetPower(ctx context.Context, on bool) error
}

// PowerCycle switches power off and back on.
func PowerCycle(ctx context.Context, p PowerSwitch) error {
	if err := p.SetPower(ctx, false); err != nil {
		return err
	}
	return p.SetPower(ctx, true)
}

// CommandRunner runs an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Orbtrace switches target power with the orbtrace utility.
type Orbtrace struct {
	// Path is the orbtrace executable.
	Path string

	// Rail is the supply rail to switch, e.g. "vtpwr".
	Rail string

	// Voltage is the rail voltage in volts, e.g. "5".
	Voltage string

	// Settle is waited after every transition.
	Settle time.Duration

	// Run executes orbtrace. Defaults to os/exec.
	Run CommandRunner

	Logger         *slog.Logger
	ProtocolLogger plog.Logger
}

// NewOrbtrace returns an Orbtrace for the vtpwr rail at 5 V with a 100 ms
// settle time.
func NewOrbtrace(path string) *Orbtrace {
	return &Orbtrace{
		Path:    path,
		Rail:    "vtpwr",
		Voltage: "5",
		Settle:  100 * time.Millisecond,
	}
}

// Args returns the orbtrace arguments for one transition.
func (o *Orbtrace) Args(on bool) []string {
	state := "off"
	if on {
		state = "on"
	}
	return []string{
		"--voltage", o.Rail + "," + o.Voltage,
		"--power", o.Rail + "," + state,
	}
}

// SetPower runs orbtrace once and waits for the rail to settle.
func (o *Orbtrace) SetPower(ctx context.Context, on bool) error {
	run := o.Run
	if run == nil {
		run = execRunner
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := o.Args(on)
	logger.Debug("orbtrace", "args", strings.Join(args, " "))
	if out, err := run(ctx, o.Path, args...); err != nil {
		return fmt.Errorf("%s %s: %w: %s", o.Path, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}

	newState, oldState := "off", "on"
	if on {
		newState, oldState = "on", "off"
	}
	plog.OrNoop(o.ProtocolLogger).Log(plog.Event{
		Timestamp: time.Now(),
		Layer:     plog.LayerWorkflow,
		Category:  plog.CategoryState,
		StateChange: &plog.StateChangeEvent{
			Entity:   plog.StateEntityPower,
			OldState: oldState,
			NewState: newState,
		},
	})

	t := time.NewTimer(o.Settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
