package mock

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/zyp/gdb-autotest/pkg/mi"
)

// Default identification strings of the simulated tools.
var (
	DefaultGDBVersion = []string{
		"GNU gdb (Arm GNU Toolchain 13.2.rel1 (Build arm-13.7)) 13.2.90.20231008-git",
		"Copyright (C) 2023 Free Software Foundation, Inc.",
	}
	DefaultProbeVersion = []string{
		"Black Magic Probe (BMDA) v2.0.0",
		"Running on Linux with libusb",
		"Copyright (C) 2015-2024 Black Magic Debug Project",
	}
)

// GDB simulates arm-none-eabi-gdb in MI mode connected to a Black Magic
// probe that drives Target.
type GDB struct {
	Target *Target

	// Version is printed for -gdb-version and in the banner.
	Version []string

	// ProbeVersion is printed for "monitor version".
	ProbeVersion []string

	// Files are the files -file-exec-and-symbols can open, by name.
	Files map[string]Image

	mu          sync.Mutex
	file        *Image
	breakpoints int
	commands    []string
}

// NewGDB returns a simulated debugger for target that can open the
// default firmware and lock images.
func NewGDB(target *Target) *GDB {
	return &GDB{
		Target:       target,
		Version:      DefaultGDBVersion,
		ProbeVersion: DefaultProbeVersion,
		Files: map[string]Image{
			FirmwareImage.Name: FirmwareImage,
			LockImage.Name:     LockImage,
		},
	}
}

// Commands returns the commands received so far, without tokens.
func (g *GDB) Commands() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.commands...)
}

// Start runs the simulator on a pair of pipes and returns the debugger's
// stdout and stdin. The simulator stops when stdin or stdout is closed,
// or on -gdb-exit.
func (g *GDB) Start() (stdout io.ReadCloser, stdin io.WriteCloser) {
	outR, outW := io.Pipe()
	inR, inW := io.Pipe()
	go func() {
		err := g.Serve(inR, outW)
		inR.CloseWithError(err)
		outW.CloseWithError(err)
	}()
	return &stdoutPipe{PipeReader: outR, in: inR}, inW
}

// stdoutPipe also closes the command side, so that closing the reader
// stops a simulator blocked on input.
type stdoutPipe struct {
	*io.PipeReader
	in *io.PipeReader
}

func (p *stdoutPipe) Close() error {
	p.in.Close()
	return p.PipeReader.Close()
}

// Serve reads commands from in and writes MI output to out until in ends
// or the debugger exits.
func (g *GDB) Serve(in io.Reader, out io.Writer) error {
	s := &session{GDB: g, w: bufio.NewWriter(out)}
	s.banner()
	if err := s.flush(); err != nil {
		return err
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		exit := s.handle(line)
		if err := s.flush(); err != nil {
			return err
		}
		if exit {
			return nil
		}
	}
	return scanner.Err()
}

type session struct {
	*GDB
	w     *bufio.Writer
	token string
	err   error
}

func (s *session) printf(format string, args ...any) {
	if s.err == nil {
		_, s.err = fmt.Fprintf(s.w, format+"\n", args...)
	}
}

func (s *session) flush() error {
	if s.err == nil {
		s.err = s.w.Flush()
	}
	return s.err
}

func (s *session) console(text string) { s.printf("~%s", mi.Quote(text)) }
func (s *session) target(text string)  { s.printf("@%s", mi.Quote(text)) }
func (s *session) log(text string)     { s.printf("&%s", mi.Quote(text)) }

func (s *session) result(class string, results ...string) {
	rec := s.token + "^" + class
	for _, r := range results {
		rec += "," + r
	}
	s.printf("%s", rec)
	s.printf("%s", mi.Prompt)
}

func (s *session) done(results ...string) { s.result(mi.MessageDone, results...) }

func (s *session) fail(msg string) {
	s.result(mi.MessageError, "msg="+mi.Quote(msg))
}

func (s *session) banner() {
	s.printf(`=thread-group-added,id="i1"`)
	for _, l := range s.Version {
		s.console(l + "\n")
	}
	s.printf("%s", mi.Prompt)
}

// handle executes one command line and reports whether the debugger exits.
func (s *session) handle(line string) bool {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	s.token, line = line[:i], line[i:]
	if s.Target.Faults.TokenSkew && s.token != "" {
		n, _ := strconv.ParseUint(s.token, 10, 64)
		s.token = strconv.FormatUint(n+1, 10)
	}

	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()

	cmd, args, _ := strings.Cut(line, " ")
	switch cmd {
	case "-gdb-version":
		for _, l := range s.Version {
			s.console(l + "\n")
		}
		s.done()
	case "-gdb-set":
		s.done()
	case "-gdb-exit":
		s.result(mi.MessageExit)
		return true
	case "-target-select":
		s.targetSelect(args)
	case "interpreter":
		s.interpreter(args)
	case "-target-attach":
		s.attach(args)
	case "-target-detach":
		if err := s.Target.Detach(); err != nil {
			s.fail("The program is not being run.")
			return false
		}
		s.printf(`=thread-group-exited,id="i1"`)
		s.done()
	case "-file-exec-and-symbols":
		s.openFile(args)
	case "-target-download":
		s.download()
	case "-exec-run":
		s.run()
	case "-data-evaluate-expression":
		s.evaluate(args)
	case "-break-insert":
		s.breakInsert(args)
	default:
		s.fail(fmt.Sprintf("Undefined MI command: %s", strings.TrimPrefix(cmd, "-")))
	}
	return false
}

func (s *session) targetSelect(args string) {
	kind, endpoint, _ := strings.Cut(args, " ")
	if kind != "extended-remote" || endpoint == "" {
		s.fail("Unsupported target: " + args)
		return
	}
	s.console("Remote debugging using " + endpoint + "\n")
	s.result(mi.MessageConnected)
}

func (s *session) interpreter(args string) {
	name, quoted, _ := strings.Cut(args, " ")
	command, err := strconv.Unquote(quoted)
	if name != "console" || err != nil {
		s.fail("Usage: -interpreter-exec INTERPRETER COMMAND")
		return
	}
	s.log(command + "\n")

	switch {
	case command == "info mem":
		s.infoMem()
	case command == "compare-sections":
		s.compareSections()
	case strings.HasPrefix(command, "monitor "):
		s.monitor(strings.TrimPrefix(command, "monitor "))
	default:
		s.fail(fmt.Sprintf("Undefined command: %q.  Try \"help\".", command))
	}
}

func (s *session) monitor(command string) {
	switch command {
	case "version":
		for _, l := range s.ProbeVersion {
			s.target(l + "\n")
		}
		s.done()
	case "swd_scan":
		s.swdScan()
	case "erase_mass":
		s.target("Erasing device Flash: ")
		if err := s.Target.MassErase(); err != nil {
			s.target("failed\n")
			s.fail("Command failed")
			return
		}
		s.target("done\n")
		s.done()
	default:
		s.fail("Command failed")
	}
}

func (s *session) swdScan() {
	if !s.Target.Powered() && s.Target.Faults.ScanNames == nil {
		s.target("Target voltage: 0.0V\n")
		s.target("SW-DP scan failed!\n")
		s.fail("Command failed")
		return
	}
	s.target("Target voltage: 3.3V\n")
	s.target("Available Targets:\n")
	s.target("No. Att Driver\n")
	first := 1
	if s.Target.Faults.ScanGap {
		first = 2
	}
	for i, name := range s.Target.Scan() {
		s.target(fmt.Sprintf("%2d      %s\n", first+i, name))
	}
	s.done()
}

func (s *session) infoMem() {
	regions, err := s.Target.Regions()
	if err != nil {
		s.console("There are no memory regions defined.\n")
		s.done()
		return
	}
	s.console("Using memory regions provided by the target.\n")
	s.console("Num Enb Low Addr   High Addr  Attrs \n")
	for i, r := range regions {
		access := "flash blocksize 0x1000 nocache"
		if r.Name == "RAM" {
			access = "rw nocache"
		}
		s.console(fmt.Sprintf("%-3d y  \t0x%08x 0x%08x %s \n", i, r.Address, r.Address+r.Size, access))
	}
	s.done()
}

func (s *session) compareSections() {
	img := s.loaded()
	if img == nil {
		s.fail("No executable file specified.")
		return
	}
	matches, err := s.Target.Matches(*img)
	if err != nil {
		s.fail("Cannot access memory.")
		return
	}
	for i, sec := range img.Sections {
		verdict := "matched."
		if !matches[i] {
			verdict = "MIS-MATCHED!"
		}
		s.console(fmt.Sprintf("Section %s, range %#x -- %#x: %s\n", sec.Name, sec.Address, sec.Address+sec.Size, verdict))
	}
	s.done()
}

func (s *session) attach(args string) {
	ap, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		s.fail("Illegal process-id: " + args + ".")
		return
	}
	if err := s.Target.Attach(ap); err != nil {
		s.fail("Attaching to target failed")
		return
	}
	s.printf(`=thread-group-started,id="i1",pid="%d"`, ap)
	s.printf(`=thread-created,id="1",group-id="i1"`)
	s.done()
}

func (s *session) openFile(args string) {
	name := strings.TrimSpace(args)
	if unq, err := strconv.Unquote(name); err == nil {
		name = unq
	}
	img, ok := s.Files[name]
	if !ok {
		s.fail(name + ": No such file or directory.")
		return
	}
	s.mu.Lock()
	s.file = &img
	s.mu.Unlock()
	s.done()
}

func (s *session) loaded() *Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file
}

func (s *session) download() {
	img := s.loaded()
	if img == nil {
		s.fail("No executable file specified.")
		return
	}
	if err := s.Target.Download(*img); err != nil {
		s.fail("Load failed")
		return
	}
	var total uint64
	for _, sec := range img.Sections {
		total += sec.Size
	}
	for _, sec := range img.Sections {
		s.printf(`+download,{section="%s",section-size="%d",total-size="%d"}`, sec.Name, sec.Size, total)
	}
	s.done(fmt.Sprintf(`address="%#x"`, img.Sections[0].Address), fmt.Sprintf(`load-size="%d"`, total),
		`transfer-rate="43000"`, `write-rate="1000"`)
}

func (s *session) run() {
	img := s.loaded()
	if img == nil {
		s.fail("No executable file specified.")
		return
	}
	if err := s.Target.CanRun(); err != nil {
		s.fail("Could not start program.")
		return
	}
	s.printf(`=thread-group-started,id="i1",pid="1"`)
	s.result(mi.MessageRunning)
	s.printf(`*running,thread-id="all"`)
	if s.Target.Faults.HangOnRun {
		return
	}
	s.printf(`*stopped,reason="breakpoint-hit",disp="del",bkptno="1",frame={addr="%#08x",func="main",args=[],file="main.cpp",line="12"},thread-id="1",stopped-threads="all"`, img.Entry)
	s.printf("%s", mi.Prompt)
}

// evaluate handles {type}0xADDR and {type}0xADDR=VALUE.
func (s *session) evaluate(expr string) {
	expr = strings.TrimSpace(expr)
	_, rest, ok := strings.Cut(expr, "}")
	if !ok || !strings.HasPrefix(expr, "{") {
		s.fail("No symbol table is loaded.  Use the \"file\" command.")
		return
	}
	lhs, rhs, assign := strings.Cut(rest, "=")
	addr, err := strconv.ParseUint(lhs, 0, 64)
	if err != nil {
		s.fail("Invalid number \"" + lhs + "\".")
		return
	}
	if assign {
		value, err := strconv.ParseUint(rhs, 0, 64)
		if err != nil {
			s.fail("Invalid number \"" + rhs + "\".")
			return
		}
		if err := s.Target.Write(addr, value); err != nil {
			s.fail(fmt.Sprintf("Cannot access memory at address %#x", addr))
			return
		}
		s.done(fmt.Sprintf(`value="%d"`, value))
		return
	}
	value, err := s.Target.Read(addr)
	if err != nil {
		s.fail(fmt.Sprintf("Cannot access memory at address %#x", addr))
		return
	}
	s.done(fmt.Sprintf(`value="%d"`, value))
}

func (s *session) breakInsert(location string) {
	img := s.loaded()
	if img == nil {
		s.fail("No symbol table is loaded.  Use the \"file\" command.")
		return
	}
	s.mu.Lock()
	s.breakpoints++
	n := s.breakpoints
	s.mu.Unlock()
	s.done(fmt.Sprintf(`bkpt={number="%d",type="breakpoint",disp="keep",enabled="y",addr="%#08x",func="%s",file="main.cpp",line="12",thread-groups=["i1"],times="0",original-location="%s"}`,
		n, img.Entry, location, location))
}
