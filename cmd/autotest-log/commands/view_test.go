package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zyp/gdb-autotest/pkg/log"
)

const testSession = "0b6f2f7e-6f5c-4b59-9d55-3f1f4a0f8a11"

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+log.FileExt)

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func sessionEvents() []log.Event {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	elapsed := 1500 * time.Microsecond
	return []log.Event{
		{
			Timestamp: ts, SessionID: testSession, Direction: log.DirectionOut,
			Layer: log.LayerMI, Category: log.CategoryMessage, Endpoint: "localhost:2000",
			Command: &log.CommandEvent{Token: 7, Text: "-target-attach 1"},
		},
		{
			Timestamp: ts.Add(time.Millisecond), SessionID: testSession, Direction: log.DirectionIn,
			Layer: log.LayerMI, Category: log.CategoryMessage, Endpoint: "localhost:2000",
			Record: &log.RecordEvent{Type: "result", Token: 7, Message: "error",
				Results: map[string]any{"msg": "Attaching to target failed"}, Elapsed: &elapsed},
		},
		{
			Timestamp: ts.Add(2 * time.Millisecond), SessionID: testSession, Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryMessage,
			Line: &log.LineEvent{Text: "~\"Available Targets:\\n\""},
		},
		{
			Timestamp: ts.Add(3 * time.Millisecond), SessionID: testSession,
			Layer: log.LayerWorkflow, Category: log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity: log.StateEntityCheckpoint, OldState: "locked", NewState: "unlocked",
				Reason: "Performing SWD scan"},
		},
		{
			Timestamp: ts.Add(4 * time.Millisecond), SessionID: testSession,
			Layer: log.LayerMI, Category: log.CategoryError,
			Error: &log.ErrorEventData{Layer: log.LayerMI, Message: "token skew", Context: "await 8"},
		},
	}
}

func TestFormatCommandEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sessionEvents()[0])
	output := buf.String()

	for _, want := range []string{
		"2026-03-02T09:30:00.000000Z",
		"[session:0b6f2f7e]",
		"OUT MI Command",
		"Token: 7",
		"Command: -target-attach 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestFormatRecordEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sessionEvents()[1])
	output := buf.String()

	for _, want := range []string{
		"IN  MI result",
		"Class: error",
		`Results: {"msg":"Attaching to target failed"}`,
		"Elapsed: 1.500ms",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestFormatStateChangeEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sessionEvents()[3])
	output := buf.String()

	for _, want := range []string{"WORKFLOW State", "Entity: CHECKPOINT", "locked -> unlocked", "Reason: Performing SWD scan"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestFormatErrorEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sessionEvents()[4])
	output := buf.String()

	for _, want := range []string{"Error", "Message: token skew", "Context: await 8"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Nanosecond, "0.500us"},
		{1500 * time.Microsecond, "1.500ms"},
		{2500 * time.Millisecond, "2.500s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("MI"); err != nil || l != log.LayerMI {
		t.Errorf("ParseLayerFlag(MI) = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if d, err := ParseDirectionFlag("out"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag(out) = %v, %v", d, err)
	}
	if _, err := ParseDirectionFlag("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
	if c, err := ParseCategoryFlag("State"); err != nil || c != log.CategoryState {
		t.Errorf("ParseCategoryFlag(State) = %v, %v", c, err)
	}
	if _, err := ParseCategoryFlag("control"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestRunViewFilters(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	layer := log.LayerWorkflow
	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Layer: &layer}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if got := strings.Count(buf.String(), "[session:"); got != 1 {
		t.Errorf("expected 1 workflow event, got %d:\n%s", got, buf.String())
	}

	buf.Reset()
	if err := RunView(path, ViewFilter{Token: 7}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()
	if strings.Count(output, "[session:") != 2 {
		t.Errorf("expected command and result for token 7, got:\n%s", output)
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.milog"), ViewFilter{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
