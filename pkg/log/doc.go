// Package log provides structured protocol capture for GDB/MI sessions.
//
// This package defines the Logger interface and Event types for recording
// every command written to the debugger and every record read back from it,
// together with adapter lifecycle and provisioning checkpoint transitions.
// It is separate from operational logging (slog): protocol capture is a
// complete machine-readable trace for diagnosing probe or target desync.
//
// # Basic Usage
//
//	// For development: mirror events to the console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For bench runs: write to a binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("nrf54l.milog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Transport: raw text lines (LineEvent)
//   - MI: tokenised commands (CommandEvent) and decoded records (RecordEvent)
//   - Workflow: power, adapter and checkpoint transitions (StateChangeEvent)
//
// Errors at any layer have a dedicated ErrorEventData payload.
//
// # File Format
//
// Log files are a concatenation of CBOR-encoded events (.milog). The
// autotest-log tool views, filters and exports them.
package log
