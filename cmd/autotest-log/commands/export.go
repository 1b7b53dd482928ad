package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/zyp/gdb-autotest/pkg/log"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	return reader.Each(func(event log.Event) error {
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		return nil
	})
}

// csvHeader names the columns written by exportCSV.
var csvHeader = []string{"timestamp", "session_id", "direction", "layer", "category", "endpoint", "type", "token", "text"}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	err := reader.Each(func(event log.Event) error {
		return cw.Write(csvRow(event))
	})
	cw.Flush()
	if err != nil {
		return err
	}
	return cw.Error()
}

// csvRow flattens event into the csvHeader columns.
func csvRow(event log.Event) []string {
	kind, token, text := "unknown", "", ""
	switch {
	case event.Line != nil:
		kind, text = "line", event.Line.Text
	case event.Command != nil:
		kind, text = "command", event.Command.Text
		token = strconv.FormatUint(event.Command.Token, 10)
	case event.Record != nil:
		kind, text = event.Record.Type, event.Record.Message
		if event.Record.Payload != "" {
			text = event.Record.Payload
		}
		if event.Record.Token != 0 {
			token = strconv.FormatUint(event.Record.Token, 10)
		}
	case event.StateChange != nil:
		kind, text = "state", event.StateChange.NewState
	case event.Error != nil:
		kind, text = "error", event.Error.Message
	}
	return []string{
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
		event.SessionID,
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		event.Endpoint,
		kind,
		token,
		text,
	}
}
