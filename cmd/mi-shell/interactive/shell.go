// Package interactive provides the interactive console of mi-shell.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/zyp/gdb-autotest/internal/adapter"
	"github.com/zyp/gdb-autotest/pkg/bmp"
	"github.com/zyp/gdb-autotest/pkg/gdb"
	"github.com/zyp/gdb-autotest/pkg/nrf54l"
)

// Shell runs probe commands typed at a prompt.
type Shell struct {
	probe   *bmp.Probe
	power   adapter.PowerSwitch
	timeout time.Duration
	out     io.Writer
	rl      *readline.Instance
}

// New creates a shell on an open probe. power may be nil, which disables
// the power command. Every command is bounded by timeout.
func New(probe *bmp.Probe, power adapter.PowerSwitch, timeout time.Duration, out io.Writer) *Shell {
	return &Shell{
		probe:   probe,
		power:   power,
		timeout: timeout,
		out:     out,
	}
}

// Stdout returns a writer that coordinates with the readline prompt once
// Run has started.
func (s *Shell) Stdout() io.Writer {
	if s.rl != nil {
		return s.rl.Stdout()
	}
	return s.out
}

// Run reads commands until quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "(mi) ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	s.rl = rl
	s.out = rl.Stdout()
	defer rl.Close()

	s.printHelp()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return nil
		}
		if s.Execute(ctx, line) {
			return nil
		}
	}
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("version"),
	readline.PcItem("scan"),
	readline.PcItem("attach"),
	readline.PcItem("detach"),
	readline.PcItem("erase"),
	readline.PcItem("mem"),
	readline.PcItem("load"),
	readline.PcItem("download"),
	readline.PcItem("verify"),
	readline.PcItem("run"),
	readline.PcItem("peek"),
	readline.PcItem("poke"),
	readline.PcItem("break"),
	readline.PcItem("mon"),
	readline.PcItem("power", readline.PcItem("on"), readline.PcItem("off"), readline.PcItem("cycle")),
	readline.PcItem("quit"),
)

// Execute runs one command line and reports whether the shell should exit.
// Lines starting with "-" are sent to the debugger unchanged.
func (s *Shell) Execute(ctx context.Context, line string) (quit bool) {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if strings.HasPrefix(input, "-") {
		s.report(s.cmdRaw(ctx, input))
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "version", "v":
		err = s.cmdVersion(ctx)
	case "scan", "s":
		err = s.cmdScan(ctx)
	case "attach", "a":
		err = s.cmdAttach(ctx, args)
	case "detach", "d":
		err = s.outcome(s.probe.Detach(ctx))
	case "erase":
		err = s.cmdErase(ctx)
	case "mem", "m":
		err = s.cmdMem(ctx)
	case "load":
		err = s.cmdLoad(ctx, args)
	case "download":
		err = s.outcome(s.probe.Download(ctx))
	case "verify":
		err = s.cmdVerify(ctx)
	case "run":
		err = s.cmdRun(ctx)
	case "peek", "x":
		err = s.cmdPeek(ctx, args)
	case "poke":
		err = s.cmdPoke(ctx, args)
	case "break", "b":
		err = s.cmdBreak(ctx, args)
	case "mon", "monitor":
		err = s.cmdMonitor(ctx, args)
	case "power", "p":
		err = s.cmdPower(ctx, args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.Stdout(), "Exiting...")
		return true
	default:
		fmt.Fprintf(s.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	s.report(err)
	return false
}

func (s *Shell) report(err error) {
	if err != nil {
		fmt.Fprintf(s.Stdout(), "Error: %v\n", err)
	}
}

// outcome prints OK or the debugger's error message.
func (s *Shell) outcome(ok bool, err error) error {
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(s.Stdout(), "OK")
	} else {
		fmt.Fprintf(s.Stdout(), "Failed: %s\n", s.probe.LastError())
	}
	return nil
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.Stdout(), `
MI Shell Commands:
  Probe:
    version            - Show GDB and probe firmware versions
    scan               - SWD scan and classify the nRF54L lock state
    attach <ap>        - Attach to access port <ap>
    detach             - Detach from the target
    erase              - Mass erase through the attached CTRL-AP
    mon <command>      - Run a probe monitor command

  Memory:
    mem                - Show the memory map and check the nRF54L layout
    peek <addr> [type] - Read memory (default type uint32_t)
    poke <addr> <val> [type]
                       - Write memory

  Program:
    load <file>        - Select executable and symbol file
    download           - Write the loaded file to the target
    verify             - Compare target memory with the loaded file
    run                - Run to the program entry
    break <location>   - Insert a breakpoint

  Other:
    power on|off|cycle - Switch target power
    -<mi command>      - Send a raw MI command
    help               - Show this help
    quit               - Exit`)
}

func (s *Shell) cmdRaw(ctx context.Context, command string) error {
	records, err := s.probe.Exchange(ctx, command)
	for _, r := range records {
		fmt.Fprintln(s.Stdout(), r)
	}
	return err
}

func (s *Shell) cmdVersion(ctx context.Context) error {
	v, err := s.probe.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Stdout(), "GDB:   %s\n", v)

	lines, err := s.probe.FirmwareVersion(ctx)
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Fprintf(s.Stdout(), "Probe: %s\n", l)
	}
	return nil
}

func (s *Shell) cmdScan(ctx context.Context) error {
	names, err := s.probe.ScanAccessPorts(ctx)
	if err != nil {
		return err
	}
	for i, n := range names {
		fmt.Fprintf(s.Stdout(), "  %d %s\n", i+1, n)
	}

	topo := nrf54l.Classify(names)
	fmt.Fprintf(s.Stdout(), "Topology: %s\n", topo)
	if ap, ok := topo.CtrlAP(); ok {
		fmt.Fprintf(s.Stdout(), "CTRL-AP:  %d\n", ap)
	}
	if ap, ok := topo.CoreAP(); ok {
		fmt.Fprintf(s.Stdout(), "Core AP:  %d\n", ap)
	}
	return nil
}

func (s *Shell) cmdAttach(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: attach <ap>")
	}
	ap, err := strconv.Atoi(args[0])
	if err != nil || ap < 1 {
		return fmt.Errorf("invalid access port: %s", args[0])
	}
	return s.outcome(s.probe.Attach(ctx, ap))
}

func (s *Shell) cmdErase(ctx context.Context) error {
	ok, err := s.probe.MassErase(ctx)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(s.Stdout(), "Erased")
	} else {
		fmt.Fprintln(s.Stdout(), "Mass erase failed")
	}
	return nil
}

func (s *Shell) cmdMem(ctx context.Context) error {
	m, err := s.probe.MemoryMap(ctx)
	if err != nil {
		return err
	}
	for _, addr := range m.Addresses() {
		r := m[addr]
		fmt.Fprintf(s.Stdout(), "  %#010x %#010x %-5s %s\n", r.Address, r.Size, r.Access, r.Attrs)
	}
	if err := nrf54l.CheckMemoryMap(m, nrf54l.Layout); err != nil {
		fmt.Fprintf(s.Stdout(), "Layout: %v\n", err)
	} else {
		fmt.Fprintln(s.Stdout(), "Layout: nRF54L15")
	}
	return nil
}

func (s *Shell) cmdLoad(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: load <file>")
	}
	return s.outcome(s.probe.LoadSymbols(ctx, args[0]))
}

func (s *Shell) cmdVerify(ctx context.Context) error {
	ok, err := s.probe.CompareSections(ctx)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(s.Stdout(), "Sections match")
	} else {
		fmt.Fprintln(s.Stdout(), "Sections differ")
	}
	return nil
}

func (s *Shell) cmdRun(ctx context.Context) error {
	outcome, err := s.probe.RunToStart(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Stdout(), "Target %s\n", outcome)
	if outcome == gdb.StartFailed {
		fmt.Fprintf(s.Stdout(), "  %s\n", s.probe.LastError())
	}
	return nil
}

func (s *Shell) cmdPeek(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: peek <addr> [type]")
	}
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address: %s", args[0])
	}
	typ := "uint32_t"
	if len(args) == 2 {
		typ = args[1]
	}

	v, ok, err := s.probe.Peek(ctx, addr, typ)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(s.Stdout(), "Failed: %s\n", s.probe.LastError())
		return nil
	}
	fmt.Fprintf(s.Stdout(), "%#x: %d (%#x)\n", addr, v, v)
	return nil
}

func (s *Shell) cmdPoke(ctx context.Context, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: poke <addr> <value> [type]")
	}
	addr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address: %s", args[0])
	}
	value, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid value: %s", args[1])
	}
	typ := "uint32_t"
	if len(args) == 3 {
		typ = args[2]
	}
	return s.outcome(s.probe.Poke(ctx, addr, value, typ))
}

func (s *Shell) cmdBreak(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: break <location>")
	}
	id, ok, err := s.probe.SetBreakpoint(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(s.Stdout(), "Failed: %s\n", s.probe.LastError())
		return nil
	}
	fmt.Fprintf(s.Stdout(), "Breakpoint %d at %s\n", id, args[0])
	return nil
}

func (s *Shell) cmdMonitor(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: mon <command>")
	}
	lines, err := s.probe.Monitor(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Fprintln(s.Stdout(), l)
	}
	return nil
}

func (s *Shell) cmdPower(ctx context.Context, args []string) error {
	if s.power == nil {
		return errors.New("no power switch configured")
	}
	if len(args) != 1 {
		return errors.New("usage: power on|off|cycle")
	}

	var err error
	switch strings.ToLower(args[0]) {
	case "on":
		err = s.power.SetPower(ctx, true)
	case "off":
		err = s.power.SetPower(ctx, false)
	case "cycle":
		err = adapter.PowerCycle(ctx, s.power)
	default:
		return fmt.Errorf("usage: power on|off|cycle")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(s.Stdout(), "OK")
	return nil
}
