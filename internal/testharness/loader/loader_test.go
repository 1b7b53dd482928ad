package loader_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/zyp/gdb-autotest/internal/testharness/loader"
)

// TestLoaderParseBasic tests basic YAML workflow parsing.
func TestLoaderParseBasic(t *testing.T) {
	yaml := `
id: wf-basic
name: Basic Workflow
description: A simple workflow
steps:
  - action: attach
    params:
      ap: 1
    failure: Could not attach
`
	wf, err := loader.ParseWorkflow([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to parse workflow: %v", err)
	}

	if wf.ID != "wf-basic" {
		t.Errorf("ID mismatch: expected wf-basic, got %s", wf.ID)
	}
	if wf.Name != "Basic Workflow" {
		t.Errorf("Name mismatch: expected 'Basic Workflow', got %s", wf.Name)
	}
	if len(wf.Steps) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(wf.Steps))
	}
	step := wf.Steps[0]
	if step.Action != "attach" {
		t.Errorf("Step action mismatch: expected attach, got %s", step.Action)
	}
	if step.Params["ap"] != 1 {
		t.Errorf("Step param ap: expected 1, got %v", step.Params["ap"])
	}
	if step.Failure != "Could not attach" {
		t.Errorf("Step failure mismatch: got %q", step.Failure)
	}
	if step.Line != 6 {
		t.Errorf("Step line: expected 6, got %d", step.Line)
	}
	if step.Label() != "attach" {
		t.Errorf("Label should fall back to action, got %q", step.Label())
	}
}

// TestLoaderPhases tests that steps without a phase inherit the previous one.
func TestLoaderPhases(t *testing.T) {
	yaml := `
id: wf-phases
steps:
  - action: power_cycle
  - phase: unlock
    action: attach
  - action: erase_mass
  - phase: check
    action: swd_scan
  - action: detach
`
	wf, err := loader.ParseWorkflow([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to parse workflow: %v", err)
	}

	var got []string
	for _, s := range wf.Steps {
		got = append(got, s.Phase)
	}
	want := []string{"", "unlock", "unlock", "check", "check"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
}

// TestLoaderExpectations tests parsing of list and hex expectations.
func TestLoaderExpectations(t *testing.T) {
	yaml := `
id: wf-expect
steps:
  - action: swd_scan
    expect:
      topology: [locked, unlocked]
  - action: memory_map
    expect:
      memory_regions:
        - {name: UICR, address: 0x00ffd000, size: 4096}
`
	wf, err := loader.ParseWorkflow([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to parse workflow: %v", err)
	}

	want := map[string]any{"topology": []any{"locked", "unlocked"}}
	if diff := cmp.Diff(want, wf.Steps[0].Expect); diff != "" {
		t.Errorf("topology expect mismatch (-want +got):\n%s", diff)
	}

	regions, ok := wf.Steps[1].Expect["memory_regions"].([]any)
	if !ok || len(regions) != 1 {
		t.Fatalf("Expected one memory region, got %#v", wf.Steps[1].Expect["memory_regions"])
	}
	region := regions[0].(map[string]any)
	if region["address"] != 0x00ffd000 {
		t.Errorf("hex address mismatch: got %v", region["address"])
	}
}

// TestLoaderErrors tests that invalid workflows are rejected.
func TestLoaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		message string
	}{
		{
			name: "invalid yaml syntax",
			yaml: `
id: wf-err
steps: [unclosed
`,
			message: "failed to parse YAML",
		},
		{
			name:    "empty document",
			yaml:    "",
			message: "empty workflow",
		},
		{
			name: "missing required id",
			yaml: `
name: No ID
steps:
  - action: detach
`,
			message: "workflow ID is required",
		},
		{
			name: "empty steps",
			yaml: `
id: wf-empty
steps: []
`,
			message: "at least one step",
		},
		{
			name: "step without action",
			yaml: `
id: wf-noaction
steps:
  - action: detach
  - description: nothing to do
`,
			message: "step 2 has no action",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.ParseWorkflow([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Expected error but got nil")
			}
			var le *loader.LoadError
			if !errors.As(err, &le) {
				t.Fatalf("Expected *LoadError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("Error %q does not mention %q", err, tt.message)
			}
		})
	}
}

// TestLoadErrorFormat tests file and line rendering of load errors.
func TestLoadErrorFormat(t *testing.T) {
	err := &loader.LoadError{File: "wf.yaml", Line: 12, Message: "bad step"}
	if got := err.Error(); got != "wf.yaml:12: bad step" {
		t.Errorf("unexpected error text: %q", got)
	}

	cause := errors.New("boom")
	err = &loader.LoadError{Message: "failed", Cause: cause}
	if got := err.Error(); got != "<workflow>: failed: boom" {
		t.Errorf("unexpected error text: %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("LoadError should unwrap to its cause")
	}
}

// TestLoaderLoadFile tests loading a workflow from a file.
func TestLoaderLoadFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "workflow.yaml")

	yaml := `
id: wf-file
name: File Workflow
steps:
  - action: swd_scan
`
	if err := os.WriteFile(file, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write workflow file: %v", err)
	}

	wf, err := loader.LoadWorkflow(file)
	if err != nil {
		t.Fatalf("Failed to load workflow: %v", err)
	}
	if wf.ID != "wf-file" {
		t.Errorf("ID mismatch: expected wf-file, got %s", wf.ID)
	}
	if wf.File != file {
		t.Errorf("File mismatch: expected %s, got %s", file, wf.File)
	}
}

// TestLoaderLoadFileErrorNamesFile tests that parse errors carry the path.
func TestLoaderLoadFileErrorNamesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(file, []byte("name: no id\nsteps:\n  - action: x\n"), 0644); err != nil {
		t.Fatalf("Failed to write workflow file: %v", err)
	}

	_, err := loader.LoadWorkflow(file)
	var le *loader.LoadError
	if !errors.As(err, &le) {
		t.Fatalf("Expected *LoadError, got %v", err)
	}
	if le.File != file {
		t.Errorf("File mismatch: expected %s, got %s", file, le.File)
	}

	if _, err := loader.LoadWorkflow(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

// TestLoaderLoadDirectory tests loading all workflows from a directory.
func TestLoaderLoadDirectory(t *testing.T) {
	dir := t.TempDir()

	files := map[string]string{
		"a-first.yaml": `
id: wf-1
steps:
  - action: power_cycle
`,
		"b-second.yml": `
id: wf-2
steps:
  - action: swd_scan
`,
		"readme.md": "# Not a workflow",
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
		t.Fatalf("Failed to create subdirectory: %v", err)
	}

	workflows, err := loader.LoadDirectory(dir)
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(workflows) != 2 {
		t.Fatalf("Expected 2 workflows, got %d", len(workflows))
	}
	if workflows[0].ID != "wf-1" || workflows[1].ID != "wf-2" {
		t.Errorf("Workflows not in file order: %s, %s", workflows[0].ID, workflows[1].ID)
	}

	viaLoad, err := loader.Load(dir)
	if err != nil {
		t.Fatalf("Load(dir) failed: %v", err)
	}
	if len(viaLoad) != 2 {
		t.Errorf("Load(dir): expected 2 workflows, got %d", len(viaLoad))
	}
}

// TestLoaderDefault tests the embedded lock-lifecycle workflow.
func TestLoaderDefault(t *testing.T) {
	wf, err := loader.Default()
	if err != nil {
		t.Fatalf("Failed to load default workflow: %v", err)
	}
	if wf.ID != loader.DefaultWorkflow {
		t.Errorf("ID mismatch: expected %s, got %s", loader.DefaultWorkflow, wf.ID)
	}
	if wf.Vars["firmware"] != "nrf54l_firmware.elf" {
		t.Errorf("firmware var: got %v", wf.Vars["firmware"])
	}
	if wf.Vars["lock_image"] != "nrf54l_uicr_approtect.hex" {
		t.Errorf("lock_image var: got %v", wf.Vars["lock_image"])
	}

	var phases []string
	for _, s := range wf.Steps {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}
	want := []string{
		"power on", "versions", "initial scan", "initial erase",
		"relock on power cycle", "unlock", "memory layout", "flash firmware",
		"stays unlocked", "run firmware", "erase check", "reflash",
		"still unlocked", "lock",
	}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}

	first, last := wf.Steps[0], wf.Steps[len(wf.Steps)-1]
	if first.Action != "power_cycle" {
		t.Errorf("first action: expected power_cycle, got %s", first.Action)
	}
	if last.Action != "swd_scan" || last.Expect["topology"] != "locked" {
		t.Errorf("last step should require a locked scan, got %s %v", last.Action, last.Expect)
	}

	viaLoad, err := loader.Load("")
	if err != nil || len(viaLoad) != 1 || viaLoad[0].ID != wf.ID {
		t.Errorf("Load(\"\") should yield the default workflow, got %v, %v", viaLoad, err)
	}

	if _, err := loader.Builtin("does-not-exist"); err == nil {
		t.Error("Expected error for unknown built-in workflow")
	}
}

// TestLoaderValidate tests action and timeout validation.
func TestLoaderValidate(t *testing.T) {
	yaml := `
id: wf-validate
timeout: forever
steps:
  - action: attach
  - action: teleport
  - action: detach
    timeout: 5x
`
	wf, err := loader.ParseWorkflow([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to parse workflow: %v", err)
	}

	err = loader.Validate(wf, []string{"attach", "detach"})
	if err == nil {
		t.Fatal("Expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{"invalid workflow timeout", `step 2: unknown action "teleport"`, "step 3: invalid timeout", ":6:"} {
		if !strings.Contains(msg, want) {
			t.Errorf("validation error %q does not mention %q", msg, want)
		}
	}

	wf.Timeout = ""
	wf.Steps = wf.Steps[:1]
	if err := loader.Validate(wf, []string{"attach"}); err != nil {
		t.Errorf("Expected valid workflow, got %v", err)
	}
}
