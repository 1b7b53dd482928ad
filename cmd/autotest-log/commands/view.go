// Package commands implements the autotest-log CLI commands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zyp/gdb-autotest/pkg/log"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
	Token     uint64
}

func (f ViewFilter) logFilter() log.Filter {
	return log.Filter{
		Layer:     f.Layer,
		Direction: f.Direction,
		Category:  f.Category,
		Token:     f.Token,
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [session:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case event.Line != nil:
		typeLabel = "Line"
	case event.Command != nil:
		typeLabel = "Command"
	case event.Record != nil:
		typeLabel = event.Record.Type
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [session:%s] %-3s %s %s\n",
		ts, shortenSessionID(event.SessionID), event.Direction, event.Layer, typeLabel)

	switch {
	case event.Line != nil:
		fmt.Fprintf(w, "  %s\n", event.Line.Text)
	case event.Command != nil:
		formatCommandDetails(w, event.Command)
	case event.Record != nil:
		formatRecordDetails(w, event.Record)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenSessionID returns the first 8 characters of the session ID.
func shortenSessionID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatCommandDetails(w io.Writer, cmd *log.CommandEvent) {
	if cmd.Token != 0 {
		fmt.Fprintf(w, "  Token: %d\n", cmd.Token)
	}
	fmt.Fprintf(w, "  Command: %s\n", cmd.Text)
}

func formatRecordDetails(w io.Writer, rec *log.RecordEvent) {
	if rec.Token != 0 {
		fmt.Fprintf(w, "  Token: %d\n", rec.Token)
	}
	if rec.Message != "" {
		fmt.Fprintf(w, "  Class: %s\n", rec.Message)
	}
	if rec.Payload != "" {
		fmt.Fprintf(w, "  Text: %q\n", rec.Payload)
	}
	if rec.Results != nil {
		results, err := json.Marshal(rec.Results)
		if err == nil {
			fmt.Fprintf(w, "  Results: %s\n", results)
		}
	}
	if rec.Elapsed != nil {
		fmt.Fprintf(w, "  Elapsed: %s\n", formatDuration(*rec.Elapsed))
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "mi":
		return log.LayerMI, nil
	case "workflow":
		return log.LayerWorkflow, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, mi, or workflow)", s)
	}
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, state, or error)", s)
	}
}

// RunView writes every matching event of the log file to output.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter.logFilter())
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return reader.Each(func(event log.Event) error {
		formatEvent(output, event)
		return nil
	})
}
