package commands

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/zyp/gdb-autotest/pkg/log"
)

func TestStats(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 5",
		"MI:",
		"TRANSPORT:",
		"WORKFLOW:",
		"Sessions: 1",
		"[0b6f2f7e] 5 events",
		"Endpoint: localhost:2000",
		"Commands: 1 (1 rejected)",
		"Slowest: token 7, 1.500ms",
		"Checkpoints: [unlocked]",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestStatsSeparatesSessions(t *testing.T) {
	ts := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	events := []log.Event{
		{Timestamp: ts, SessionID: "aaaaaaaa-1", Layer: log.LayerMI},
		{Timestamp: ts.Add(time.Second), SessionID: "bbbbbbbb-2", Layer: log.LayerMI},
		{Timestamp: ts.Add(2 * time.Second), SessionID: "aaaaaaaa-1", Layer: log.LayerMI},
	}
	path := createTestLogFile(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "Sessions: 2") {
		t.Errorf("expected 2 sessions, got:\n%s", output)
	}
	if !strings.Contains(output, "[aaaaaaaa] 2 events, duration 2s") {
		t.Errorf("expected first session stats, got:\n%s", output)
	}
	if strings.Index(output, "[aaaaaaaa]") > strings.Index(output, "[bbbbbbbb]") {
		t.Error("sessions should be ordered by first event")
	}
}

func TestStatsEmptyFile(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("expected zero events, got:\n%s", buf.String())
	}
}
