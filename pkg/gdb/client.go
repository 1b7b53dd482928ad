package gdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zyp/gdb-autotest/pkg/mi"
)

// Exchanger is the MI channel a Client drives. *mi.Transport and
// *mi.Process implement it.
type Exchanger interface {
	Send(ctx context.Context, command string) ([]mi.Record, error)
	Banner(ctx context.Context) ([]mi.Record, error)
	Await(ctx context.Context, match func(mi.Record) bool) ([]mi.Record, error)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Client runs debugger operations over an Exchanger. It is not safe for
// concurrent use.
type Client struct {
	mi      Exchanger
	logger  *slog.Logger
	lastErr string
}

// New performs the session handshake: the startup banner is discarded and
// memory outside the declared map is made accessible, since the target's
// map is discovered rather than assumed.
func New(ctx context.Context, ex Exchanger, opts ...Option) (*Client, error) {
	c := &Client{mi: ex, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(c)
	}

	if _, err := ex.Banner(ctx); err != nil {
		return nil, fmt.Errorf("gdb handshake: %w", err)
	}
	ok, err := c.run(ctx, "-gdb-set mem inaccessible-by-default 0")
	if err != nil {
		return nil, fmt.Errorf("gdb handshake: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("gdb handshake: mem inaccessible-by-default: %s", c.lastErr)
	}
	return c, nil
}

// LastError returns the message of the most recent "^error" result.
func (c *Client) LastError() string { return c.lastErr }

// Logger returns the client's operational logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Exchange sends a raw MI command and returns its records. The result
// class is not checked.
func (c *Client) Exchange(ctx context.Context, command string) ([]mi.Record, error) {
	records, err := c.mi.Send(ctx, command)
	if err != nil {
		return records, err
	}
	if res, err := mi.SingleResult(command, records); err == nil && res.Message == mi.MessageError {
		c.lastErr = res.ErrorMsg()
	}
	return records, nil
}

// result sends command and returns its single result record, which must
// carry one of the accepted classes.
func (c *Client) result(ctx context.Context, command string, accept ...string) (mi.Record, []mi.Record, error) {
	records, err := c.mi.Send(ctx, command)
	if err != nil {
		return mi.Record{}, records, err
	}
	res, err := mi.SingleResult(command, records)
	if err != nil {
		return mi.Record{}, records, err
	}
	for _, a := range accept {
		if res.Message == a {
			if res.Message == mi.MessageError {
				c.lastErr = res.ErrorMsg()
				c.logger.Debug("gdb: command failed", "command", command, "msg", c.lastErr)
			}
			return res, records, nil
		}
	}
	return mi.Record{}, records, &mi.ProtocolError{
		Command: command,
		Record:  &res,
		Reason:  fmt.Sprintf("result class %q, want one of %v", res.Message, accept),
	}
}

// run sends a command whose answer is either done or error.
func (c *Client) run(ctx context.Context, command string) (bool, error) {
	res, _, err := c.result(ctx, command, mi.MessageDone, mi.MessageError)
	if err != nil {
		return false, err
	}
	return res.Message == mi.MessageDone, nil
}

// console runs a CLI command through the console interpreter and returns
// its records.
func (c *Client) console(ctx context.Context, command string) ([]mi.Record, error) {
	cmd := "interpreter console " + mi.Quote(command)
	records, err := c.mi.Send(ctx, cmd)
	if err != nil {
		return nil, err
	}
	res, err := mi.SingleResult(cmd, records)
	if err != nil {
		return nil, err
	}
	if res.Message == mi.MessageError {
		c.lastErr = res.ErrorMsg()
	}
	return records, nil
}

// Version returns the first line GDB prints for -gdb-version.
func (c *Client) Version(ctx context.Context) (string, error) {
	_, records, err := c.result(ctx, "-gdb-version", mi.MessageDone)
	if err != nil {
		return "", err
	}
	lines := mi.Payloads(records, mi.RecordConsole)
	if len(lines) == 0 {
		return "", &mi.ProtocolError{Command: "-gdb-version", Reason: "no console output"}
	}
	return lines[0], nil
}

// Monitor passes command to the probe and returns the trimmed lines it
// printed on the target stream.
func (c *Client) Monitor(ctx context.Context, command string) ([]string, error) {
	records, err := c.console(ctx, "monitor "+command)
	if err != nil {
		return nil, err
	}
	lines := mi.Payloads(records, mi.RecordTarget)
	c.logger.Debug("gdb: monitor", "command", command, "lines", len(lines))
	return lines, nil
}

// MemoryMap returns the current memory map.
func (c *Client) MemoryMap(ctx context.Context) (MemoryMap, error) {
	records, err := c.console(ctx, "info mem")
	if err != nil {
		return nil, err
	}
	return ParseMemoryMap(mi.Payloads(records, mi.RecordConsole))
}

// CompareSections reports whether target memory matches every section of
// the loaded file.
func (c *Client) CompareSections(ctx context.Context) (bool, error) {
	records, err := c.console(ctx, "compare-sections")
	if err != nil {
		return false, err
	}
	return ParseCompareSections(mi.Payloads(records, mi.RecordConsole)), nil
}

// Peek reads a value of the given C type at addr. ok is false when the
// debugger could not evaluate the read; the value is then meaningless.
// Signed types that read negative come back as their 64-bit two's
// complement, so int64(value) restores the sign.
func (c *Client) Peek(ctx context.Context, addr uint64, typ string) (value uint64, ok bool, err error) {
	command := fmt.Sprintf("-data-evaluate-expression {%s}%#x", typ, addr)
	res, _, err := c.result(ctx, command, mi.MessageDone, mi.MessageError)
	if err != nil || res.Message == mi.MessageError {
		return 0, false, err
	}
	raw, found := res.Results.Const("value")
	if !found {
		return 0, false, &mi.ProtocolError{Command: command, Record: &res, Reason: "done without value"}
	}
	v, perr := parseValue(raw)
	if perr != nil {
		return 0, false, &mi.ProtocolError{Command: command, Record: &res, Reason: perr.Error()}
	}
	return v, true, nil
}

// Poke writes value as the given C type at addr.
func (c *Client) Poke(ctx context.Context, addr uint64, value uint64, typ string) (bool, error) {
	return c.run(ctx, fmt.Sprintf("-data-evaluate-expression {%s}%#x=%#x", typ, addr, value))
}

// Attach attaches to the target with the given access-port number.
func (c *Client) Attach(ctx context.Context, ap int) (bool, error) {
	return c.run(ctx, fmt.Sprintf("-target-attach %d", ap))
}

// Detach detaches from the current target.
func (c *Client) Detach(ctx context.Context) (bool, error) {
	return c.run(ctx, "-target-detach")
}

// LoadSymbols selects file as executable and symbol file. It fails when
// the debugger cannot open the file.
func (c *Client) LoadSymbols(ctx context.Context, file string) (bool, error) {
	if strings.ContainsAny(file, " \t\"") {
		file = mi.Quote(file)
	}
	return c.run(ctx, "-file-exec-and-symbols "+file)
}

// Download writes the loaded file to target memory.
func (c *Client) Download(ctx context.Context) (bool, error) {
	return c.run(ctx, "-target-download")
}

// SetBreakpoint inserts a breakpoint at location and returns its number.
func (c *Client) SetBreakpoint(ctx context.Context, location string) (id int, ok bool, err error) {
	command := "-break-insert " + location
	res, _, err := c.result(ctx, command, mi.MessageDone, mi.MessageError)
	if err != nil || res.Message == mi.MessageError {
		return 0, false, err
	}
	bkpt, _ := res.Results.Tuple("bkpt")
	number, _ := bkpt.Const("number")
	n, perr := strconv.Atoi(number)
	if perr != nil {
		return 0, false, &mi.ProtocolError{Command: command, Record: &res, Reason: "breakpoint without number"}
	}
	return n, true, nil
}

// TargetSelect connects the debugger to a remote target, for example
// ("extended-remote", "localhost:2000").
func (c *Client) TargetSelect(ctx context.Context, kind, endpoint string) (bool, error) {
	res, _, err := c.result(ctx, fmt.Sprintf("-target-select %s %s", kind, endpoint),
		mi.MessageConnected, mi.MessageDone, mi.MessageError)
	if err != nil {
		return false, err
	}
	return res.Message != mi.MessageError, nil
}

// StartOutcome is the result of RunToStart.
type StartOutcome int

const (
	// StartIndeterminate means neither a stop nor an error was seen.
	StartIndeterminate StartOutcome = iota
	// StartStopped means the target stopped at the program entry.
	StartStopped
	// StartFailed means the debugger refused to run the program.
	StartFailed
)

func (o StartOutcome) String() string {
	switch o {
	case StartStopped:
		return "stopped"
	case StartFailed:
		return "failed"
	default:
		return "indeterminate"
	}
}

// RunToStart runs the program to its entry point. When the debugger
// answers "^running" the client waits for the following "*stopped"; if ctx
// expires first the outcome is StartIndeterminate.
func (c *Client) RunToStart(ctx context.Context) (StartOutcome, error) {
	const command = "-exec-run --start"
	res, records, err := c.result(ctx, command, mi.MessageDone, mi.MessageRunning, mi.MessageError)
	if err != nil {
		return StartIndeterminate, err
	}
	if outcome := startOutcome(records); outcome != StartIndeterminate {
		return outcome, nil
	}
	if res.Message != mi.MessageRunning {
		return StartIndeterminate, nil
	}

	more, err := c.mi.Await(ctx, func(r mi.Record) bool {
		return r.Type == mi.RecordExec && r.Message == mi.MessageStopped
	})
	if errors.Is(err, context.DeadlineExceeded) {
		c.logger.Warn("gdb: target did not stop", "command", command)
		return StartIndeterminate, nil
	}
	if err != nil {
		return StartIndeterminate, err
	}
	return startOutcome(more), nil
}

// startOutcome returns the first decisive record among result and async
// records.
func startOutcome(records []mi.Record) StartOutcome {
	for _, rec := range records {
		if rec.Type != mi.RecordResult && !rec.Type.IsAsync() {
			continue
		}
		switch rec.Message {
		case mi.MessageError:
			return StartFailed
		case mi.MessageStopped:
			return StartStopped
		}
	}
	return StartIndeterminate
}

// parseValue decodes the value GDB prints for an integer expression,
// for example "4294967295", "-1", "0x10" or "65 'A'". Negative values are
// returned as their two's complement bit pattern.
func parseValue(raw string) (uint64, error) {
	field, _, _ := strings.Cut(strings.TrimSpace(raw), " ")
	if u, err := strconv.ParseUint(field, 0, 64); err == nil {
		return u, nil
	}
	v, err := strconv.ParseInt(field, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("value %q is not an integer", raw)
	}
	return uint64(v), nil
}
