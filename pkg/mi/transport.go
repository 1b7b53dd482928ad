package mi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	plog "github.com/zyp/gdb-autotest/pkg/log"
)

// maxLineSize bounds a single MI line. Memory dumps and symbol tables can
// exceed bufio's default of 64 KiB.
const maxLineSize = 4 << 20

// Option configures a Transport or Process.
type Option func(*options)

type options struct {
	logger    plog.Logger
	sessionID string
	endpoint  string
	stderr    io.Writer
}

// WithLogger sends every command and record to l.
func WithLogger(l plog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithSessionID sets the session ID stamped on protocol log events.
// A random UUID is used when unset.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// WithEndpoint records the probe endpoint on protocol log events.
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithStderr routes the debugger's standard error to w (Start only).
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = plog.OrNoop(o.logger)
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	return o
}

type line struct {
	text string
	err  error
}

// Transport is a command/record channel to a debugger running in MI mode.
//
// Commands are issued one at a time; Send blocks until the result record
// for its command arrives. A background goroutine reads lines so that every
// blocking call can honour its context.
type Transport struct {
	r    io.Reader
	w    io.Writer
	opts options

	mu    sync.Mutex
	token uint64

	lines      chan line
	done       chan struct{}
	readerDone chan struct{}
	closeOnce  sync.Once
}

// NewTransport starts reading MI output from r. Commands are written to w.
// If r implements io.Closer, Close closes it and waits for the reader
// goroutine. Otherwise the caller owns r: the goroutine stays blocked in
// Read until r returns EOF or an error, so r must be closed at its source.
func NewTransport(r io.Reader, w io.Writer, opts ...Option) *Transport {
	return newTransport(r, w, buildOptions(opts))
}

func newTransport(r io.Reader, w io.Writer, o options) *Transport {
	t := &Transport{
		r:          r,
		w:          w,
		opts:       o,
		lines:      make(chan line),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SessionID returns the ID stamped on this transport's log events.
func (t *Transport) SessionID() string { return t.opts.sessionID }

func (t *Transport) readLoop() {
	defer close(t.readerDone)
	defer close(t.lines)

	sc := bufio.NewScanner(t.r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		select {
		case t.lines <- line{text: sc.Text()}:
		case <-t.done:
			return
		}
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case t.lines <- line{err: err}:
	case <-t.done:
	}
}

// Send writes command with a fresh token and returns every record read up
// to and including the command's result record. Prompts are consumed.
func (t *Transport) Send(ctx context.Context, command string) ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.token++
	token := t.token
	if err := t.write(token, command); err != nil {
		return nil, err
	}
	sent := time.Now()

	var records []Record
	for {
		rec, prompt, err := t.next(ctx, &sent)
		if err != nil {
			return records, fmt.Errorf("%s: %w", command, err)
		}
		if prompt {
			continue
		}
		records = append(records, rec)
		if rec.Type != RecordResult {
			continue
		}
		if rec.Token != token {
			return records, &ProtocolError{
				Command: command,
				Record:  &rec,
				Reason:  fmt.Sprintf("result token %d, want %d", rec.Token, token),
			}
		}
		return records, nil
	}
}

// Banner reads the records the debugger prints before its first prompt.
func (t *Transport) Banner(ctx context.Context) ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var records []Record
	for {
		rec, prompt, err := t.next(ctx, nil)
		if err != nil {
			return records, fmt.Errorf("banner: %w", err)
		}
		if prompt {
			return records, nil
		}
		records = append(records, rec)
	}
}

// Await reads records until one satisfies match and returns all of them,
// the matching record last. It is used after a command answered
// "^running" to wait for the target to stop.
func (t *Transport) Await(ctx context.Context, match func(Record) bool) ([]Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var records []Record
	for {
		rec, prompt, err := t.next(ctx, nil)
		if err != nil {
			return records, fmt.Errorf("await: %w", err)
		}
		if prompt {
			continue
		}
		records = append(records, rec)
		if match(rec) {
			return records, nil
		}
	}
}

// Close stops the reader. It is safe to call more than once. When r is not
// an io.Closer, Close returns without waiting for the reader goroutine.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		if c, ok := t.r.(io.Closer); ok {
			err = c.Close()
			<-t.readerDone
		}
	})
	return err
}

func (t *Transport) stop() {
	t.closeOnce.Do(func() { close(t.done) })
}

func (t *Transport) write(token uint64, command string) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	if _, err := fmt.Fprintf(t.w, "%d%s\n", token, command); err != nil {
		t.logError(err, "write "+command)
		return fmt.Errorf("write %q: %w", command, err)
	}
	t.emit(plog.Event{
		Direction: plog.DirectionOut,
		Layer:     plog.LayerMI,
		Category:  plog.CategoryMessage,
		Command:   &plog.CommandEvent{Token: token, Text: command},
	})
	return nil
}

// next returns the next record, or prompt=true for a prompt line.
// When sent is non-nil, result records are logged with the elapsed time.
func (t *Transport) next(ctx context.Context, sent *time.Time) (Record, bool, error) {
	var l line
	var ok bool
	select {
	case <-ctx.Done():
		return Record{}, false, ctx.Err()
	case <-t.done:
		return Record{}, false, ErrClosed
	case l, ok = <-t.lines:
	}
	if !ok {
		return Record{}, false, ErrClosed
	}
	if l.err != nil {
		if errors.Is(l.err, io.EOF) {
			return Record{}, false, fmt.Errorf("%w: debugger output ended", ErrClosed)
		}
		t.logError(l.err, "read")
		return Record{}, false, l.err
	}
	if IsPrompt(l.text) {
		return Record{}, true, nil
	}

	rec, err := ParseLine(l.text)
	if err != nil {
		t.logError(err, "parse")
		return Record{}, false, err
	}
	t.logRecord(rec, l.text, sent)
	return rec, false, nil
}

func (t *Transport) logRecord(rec Record, raw string, sent *time.Time) {
	if rec.Type == RecordOutput {
		t.emit(plog.Event{
			Direction: plog.DirectionIn,
			Layer:     plog.LayerTransport,
			Category:  plog.CategoryMessage,
			Line:      &plog.LineEvent{Text: raw},
		})
		return
	}
	ev := &plog.RecordEvent{
		Type:    rec.Type.String(),
		Token:   rec.Token,
		Message: rec.Message,
		Payload: rec.Payload,
	}
	if len(rec.Results) > 0 {
		ev.Results = map[string]any(rec.Results)
	}
	if sent != nil && rec.Type == RecordResult {
		elapsed := time.Since(*sent)
		ev.Elapsed = &elapsed
	}
	t.emit(plog.Event{
		Direction: plog.DirectionIn,
		Layer:     plog.LayerMI,
		Category:  plog.CategoryMessage,
		Record:    ev,
	})
}

func (t *Transport) logError(err error, during string) {
	t.emit(plog.Event{
		Direction: plog.DirectionIn,
		Layer:     plog.LayerMI,
		Category:  plog.CategoryError,
		Error:     &plog.ErrorEventData{Layer: plog.LayerMI, Message: err.Error(), Context: during},
	})
}

func (t *Transport) emit(ev plog.Event) {
	ev.Timestamp = time.Now()
	ev.SessionID = t.opts.sessionID
	ev.Endpoint = t.opts.endpoint
	t.opts.logger.Log(ev)
}
