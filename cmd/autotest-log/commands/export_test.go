package commands

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestExportToJSONL(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("line %d is not JSON: %v", lines+1, err)
		}
		if m["SessionID"] != testSession {
			t.Errorf("line %d: SessionID = %v", lines+1, m["SessionID"])
		}
		lines++
	}
	if lines != 5 {
		t.Errorf("expected 5 lines, got %d", lines)
	}
}

func TestExportToCSV(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("expected header + 5 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][7] != "token" {
		t.Errorf("unexpected header: %v", rows[0])
	}

	cmd := rows[1]
	if cmd[6] != "command" || cmd[7] != "7" || cmd[8] != "-target-attach 1" {
		t.Errorf("command row = %v", cmd)
	}
	rec := rows[2]
	if rec[6] != "result" || rec[7] != "7" || rec[8] != "error" {
		t.Errorf("record row = %v", rec)
	}
	if rows[4][6] != "state" || rows[4][8] != "unlocked" {
		t.Errorf("state row = %v", rows[4])
	}
}

func TestExportUnknownFormat(t *testing.T) {
	path := createTestLogFile(t, sessionEvents())
	if err := RunExport(path, "xml", filepath.Join(t.TempDir(), "out")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
