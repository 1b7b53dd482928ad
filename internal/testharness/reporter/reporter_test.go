package reporter_test

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zyp/gdb-autotest/internal/testharness/engine"
	"github.com/zyp/gdb-autotest/internal/testharness/loader"
	"github.com/zyp/gdb-autotest/internal/testharness/reporter"
)

var workflow = &loader.Workflow{ID: "nrf54l-lifecycle", Name: "nRF54L lock lifecycle"}

func createRunResult(iteration int, passed bool) *engine.RunResult {
	scan := &engine.StepResult{
		Step:      &loader.Step{Phase: "initial scan", Action: "swd_scan", Description: "Performing SWD scan"},
		StepIndex: 0,
		Passed:    true,
		Duration:  50 * time.Millisecond,
		ExpectResults: map[string]*engine.ExpectResult{
			"topology": {
				Key:      "topology",
				Expected: "locked",
				Actual:   "locked",
				Passed:   true,
				Message:  "topology = locked",
			},
		},
		Output: map[string]any{"topology": "locked"},
	}
	run := &engine.RunResult{
		Workflow:    workflow,
		Iteration:   iteration,
		Passed:      passed,
		Duration:    100 * time.Millisecond,
		StepResults: []*engine.StepResult{scan},
	}
	if !passed {
		attach := &engine.StepResult{
			Step:       &loader.Step{Phase: "initial erase", Action: "attach", Failure: "Could not attach to CTRL-AP"},
			StepIndex:  1,
			Error:      errors.New("action failed: attach 1: Attaching to target failed"),
			Diagnostic: "Could not attach to CTRL-AP",
			Duration:   20 * time.Millisecond,
		}
		run.StepResults = append(run.StepResults, attach)
		run.Error = attach.Error
		run.Diagnostic = attach.Diagnostic
	}
	return run
}

func createSuiteResult() *engine.SuiteResult {
	return &engine.SuiteResult{
		Name:      "nRF54L acceptance (localhost:2000)",
		SessionID: "0b6f2f7e-6f5c-4b59-9d55-3f1f4a0f8a11",
		Results: []*engine.RunResult{
			createRunResult(1, true),
			createRunResult(2, false),
		},
		PassCount: 1,
		FailCount: 1,
		Duration:  500 * time.Millisecond,
	}
}

func TestTextReporter(t *testing.T) {
	var buf bytes.Buffer
	r := reporter.NewTextReporter(&buf, false)

	suite := createSuiteResult()
	for _, run := range suite.Results {
		r.ReportRun(run)
	}
	r.ReportSummary(suite)

	output := buf.String()
	for _, want := range []string{
		"[PASS] nRF54L lock lifecycle #1",
		"[FAIL] nRF54L lock lifecycle #2",
		"Step 2 (attach): Could not attach to CTRL-AP",
		"--- nRF54L acceptance (localhost:2000) ---",
		"Runs:     2",
		"Passed:   1",
		"Failed:   1",
		"Session:  0b6f2f7e",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Performing SWD scan") {
		t.Error("steps should only be listed in verbose mode")
	}
}

func TestTextReporterVerbose(t *testing.T) {
	var buf bytes.Buffer
	r := reporter.NewTextReporter(&buf, true)

	r.ReportRun(createRunResult(1, false))

	output := buf.String()
	for _, want := range []string{
		"  initial scan\n",
		"[PASS] 1: Performing SWD scan",
		"[OK] topology = locked",
		"  initial erase\n",
		"[FAIL] 2: attach",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in:\n%s", want, output)
		}
	}
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	r := reporter.NewJSONReporter(&buf, false)

	suite := createSuiteResult()
	for _, run := range suite.Results {
		r.ReportRun(run)
	}
	if buf.Len() != 0 {
		t.Fatalf("ReportRun wrote output: %s", buf.String())
	}
	r.ReportSummary(suite)

	var got reporter.JSONSuiteResult
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got.Total != 2 || got.Passed != 1 || got.Failed != 1 {
		t.Errorf("counts = %d/%d/%d", got.Total, got.Passed, got.Failed)
	}
	if got.SessionID != suite.SessionID {
		t.Errorf("session_id = %q", got.SessionID)
	}
	if len(got.Runs) != 2 {
		t.Fatalf("runs = %d", len(got.Runs))
	}

	failed := got.Runs[1]
	if failed.Status != "failed" || failed.Iteration != 2 {
		t.Errorf("run = %+v", failed)
	}
	if failed.Diagnostic != "Could not attach to CTRL-AP" {
		t.Errorf("diagnostic = %q", failed.Diagnostic)
	}
	if len(failed.Steps) != 2 || failed.Steps[1].Phase != "initial erase" {
		t.Errorf("steps = %+v", failed.Steps)
	}
	if exp := failed.Steps[0].Expects["topology"]; !exp.Passed || exp.Message != "topology = locked" {
		t.Errorf("expect = %+v", exp)
	}
}

func TestJSONReporterPretty(t *testing.T) {
	var buf bytes.Buffer
	reporter.NewJSONReporter(&buf, true).ReportSummary(createSuiteResult())

	if !strings.Contains(buf.String(), "\n  \"name\"") {
		t.Errorf("expected indented output:\n%s", buf.String())
	}
}

func TestJUnitReporter(t *testing.T) {
	var buf bytes.Buffer
	r := reporter.NewJUnitReporter(&buf)
	r.ReportSummary(createSuiteResult())

	output := buf.String()
	if !strings.HasPrefix(output, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("missing XML declaration")
	}

	var doc struct {
		Tests    int `xml:"tests,attr"`
		Failures int `xml:"failures,attr"`
		Suites   []struct {
			Name  string `xml:"name,attr"`
			Cases []struct {
				Name      string `xml:"name,attr"`
				Classname string `xml:"classname,attr"`
				Failure   *struct {
					Message string `xml:"message,attr"`
					Body    string `xml:",chardata"`
				} `xml:"failure"`
			} `xml:"testcase"`
		} `xml:"testsuite"`
	}
	if err := xml.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid XML: %v\n%s", err, output)
	}
	if doc.Tests != 2 || doc.Failures != 1 {
		t.Errorf("tests=%d failures=%d", doc.Tests, doc.Failures)
	}
	if len(doc.Suites) != 2 || doc.Suites[1].Name != "nRF54L lock lifecycle #2" {
		t.Fatalf("suites = %+v", doc.Suites)
	}

	cases := doc.Suites[1].Cases
	if len(cases) != 2 {
		t.Fatalf("cases = %d", len(cases))
	}
	if cases[0].Failure != nil {
		t.Error("passing step reported as failure")
	}
	if cases[1].Classname != "nrf54l-lifecycle.initial_erase" {
		t.Errorf("classname = %q", cases[1].Classname)
	}
	if cases[1].Failure == nil || cases[1].Failure.Message != "Could not attach to CTRL-AP" {
		t.Fatalf("failure = %+v", cases[1].Failure)
	}
	if !strings.Contains(cases[1].Failure.Body, "Attaching to target failed") {
		t.Errorf("failure body = %q", cases[1].Failure.Body)
	}
}

func TestJUnitEscapesDiagnostics(t *testing.T) {
	suite := createSuiteResult()
	suite.Results[1].StepResults[1].Diagnostic = `Unexpected scan result: ["a" <b>]`

	var buf bytes.Buffer
	reporter.NewJUnitReporter(&buf).ReportSummary(suite)

	if !strings.Contains(buf.String(), `message="Unexpected scan result: [&quot;a&quot; &lt;b&gt;]"`) {
		t.Errorf("diagnostic not escaped:\n%s", buf.String())
	}
}
