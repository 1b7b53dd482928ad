package mi

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol marks a violation of the command/record contract: a
	// result record for another command, a missing or duplicated result,
	// or an outcome class the caller does not accept. It indicates that
	// client and debugger are out of step and the session must not go on.
	ErrProtocol = errors.New("mi: protocol violation")

	// ErrMalformed is returned for lines that start like an MI record but
	// do not follow the record grammar.
	ErrMalformed = errors.New("mi: malformed record")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("mi: transport closed")
)

// ParseError describes a line that could not be decoded.
type ParseError struct {
	Line   string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mi: %s at offset %d in %q", e.Reason, e.Offset, e.Line)
}

func (e *ParseError) Unwrap() error { return ErrMalformed }

// ProtocolError carries the command and record that broke the contract.
type ProtocolError struct {
	Command string
	Record  *Record
	Reason  string
}

func (e *ProtocolError) Error() string {
	if e.Record != nil {
		return fmt.Sprintf("mi: protocol violation on %q: %s (got %s)", e.Command, e.Reason, e.Record)
	}
	return fmt.Sprintf("mi: protocol violation on %q: %s", e.Command, e.Reason)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }
