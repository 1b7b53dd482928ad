package mi

import (
	"fmt"
	"strings"
)

// RecordType identifies the kind of an MI record.
type RecordType uint8

const (
	// RecordResult terminates the answer to one command (^).
	RecordResult RecordType = iota
	// RecordExec is an exec async record (*).
	RecordExec
	// RecordStatus is a status async record (+).
	RecordStatus
	// RecordNotify is a notify async record (=).
	RecordNotify
	// RecordConsole is console stream output (~).
	RecordConsole
	// RecordTarget is target stream output (@).
	RecordTarget
	// RecordLog is log stream output (&).
	RecordLog
	// RecordOutput is any line that is not an MI record, such as raw
	// inferior output.
	RecordOutput
)

// String returns the record type name.
func (t RecordType) String() string {
	switch t {
	case RecordResult:
		return "result"
	case RecordExec:
		return "exec"
	case RecordStatus:
		return "status"
	case RecordNotify:
		return "notify"
	case RecordConsole:
		return "console"
	case RecordTarget:
		return "target"
	case RecordLog:
		return "log"
	case RecordOutput:
		return "output"
	default:
		return "unknown"
	}
}

// IsStream reports whether records of this type carry free text.
func (t RecordType) IsStream() bool {
	return t == RecordConsole || t == RecordTarget || t == RecordLog || t == RecordOutput
}

// IsAsync reports whether records of this type are out-of-band notifications.
func (t RecordType) IsAsync() bool {
	return t == RecordExec || t == RecordStatus || t == RecordNotify
}

// Outcome classes used by result and async records.
const (
	MessageDone      = "done"
	MessageRunning   = "running"
	MessageConnected = "connected"
	MessageError     = "error"
	MessageExit      = "exit"
	MessageStopped   = "stopped"
)

// Tuple is a decoded MI tuple. Values are string, Tuple or []any.
type Tuple map[string]any

// Const returns the string constant stored under key.
func (t Tuple) Const(key string) (string, bool) {
	v, ok := t[key].(string)
	return v, ok
}

// Tuple returns the nested tuple stored under key.
func (t Tuple) Tuple(key string) (Tuple, bool) {
	v, ok := t[key].(Tuple)
	return v, ok
}

// Record is one decoded MI output line. Records are immutable once parsed.
type Record struct {
	// Type is the record kind.
	Type RecordType

	// Token is the correlation token, 0 when the line carried none.
	Token uint64

	// Message is the result or async class ("done", "stopped", ...).
	// Empty for stream records.
	Message string

	// Payload is the decoded text of a stream record.
	Payload string

	// Results holds the key/value pairs of result and async records.
	Results Tuple
}

// Text returns the stream payload with surrounding whitespace removed.
func (r Record) Text() string {
	return strings.TrimSpace(r.Payload)
}

// ErrorMsg returns the msg field of an error result.
func (r Record) ErrorMsg() string {
	msg, _ := r.Results.Const("msg")
	return msg
}

// String renders the record in a compact, log-friendly form.
func (r Record) String() string {
	var b strings.Builder
	if r.Token != 0 {
		fmt.Fprintf(&b, "%d", r.Token)
	}
	b.WriteString(r.Type.String())
	if r.Message != "" {
		b.WriteString(":")
		b.WriteString(r.Message)
	}
	if r.Type.IsStream() {
		fmt.Fprintf(&b, " %q", r.Payload)
	} else if len(r.Results) > 0 {
		fmt.Fprintf(&b, " %v", map[string]any(r.Results))
	}
	return b.String()
}
