package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zyp/gdb-autotest/internal/adapter"
	"github.com/zyp/gdb-autotest/internal/testharness/engine"
	"github.com/zyp/gdb-autotest/pkg/mi"
)

// ErrorCategory classifies why a run stopped.
type ErrorCategory int

const (
	// ErrCatInfrastructure means the bench failed: adapter, debugger
	// process, power switch or a timeout.
	ErrCatInfrastructure ErrorCategory = iota
	// ErrCatDevice means the target refused an operation or a checkpoint
	// did not match.
	ErrCatDevice
	// ErrCatProtocol means the debugger broke the MI contract.
	ErrCatProtocol
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCatInfrastructure:
		return "infrastructure"
	case ErrCatDevice:
		return "device"
	case ErrCatProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with its category.
type ClassifiedError struct {
	Category ErrorCategory
	Err      error
}

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// Infrastructure wraps an error as a bench failure.
func Infrastructure(err error) error {
	return &ClassifiedError{Category: ErrCatInfrastructure, Err: err}
}

// Device wraps an error as a device failure.
func Device(err error) error {
	return &ClassifiedError{Category: ErrCatDevice, Err: err}
}

// Protocol wraps an error as a protocol violation.
func Protocol(err error) error {
	return &ClassifiedError{Category: ErrCatProtocol, Err: err}
}

// Category extracts the error category. Unclassified errors are sorted by
// the sentinels they wrap; anything else counts as a protocol violation.
func Category(err error) ErrorCategory {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	switch {
	case errors.Is(err, engine.ErrActionFailed), errors.Is(err, engine.ErrExpectation):
		return ErrCatDevice
	case isIOError(err):
		return ErrCatInfrastructure
	}
	return ErrCatProtocol
}

// classify wraps an error returned by the debugger client or probe
// driver. Contract violations are reported as a protocol desync.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mi.ErrProtocol) || errors.Is(err, mi.ErrMalformed) {
		return Protocol(fmt.Errorf("protocol desync: %w", err))
	}
	return Infrastructure(err)
}

// refused reports an operation the debugger answered with failure.
func refused(op, detail string) error {
	if detail == "" {
		return Device(fmt.Errorf("%w: %s", engine.ErrActionFailed, op))
	}
	return Device(fmt.Errorf("%w: %s: %s", engine.ErrActionFailed, op, detail))
}

// isIOError returns true for failures of the bench rather than the target.
func isIOError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, mi.ErrClosed) ||
		errors.Is(err, adapter.ErrDaemonExited) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection refused")
}
