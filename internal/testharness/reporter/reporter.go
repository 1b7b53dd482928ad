// Package reporter formats workflow results.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/zyp/gdb-autotest/internal/testharness/engine"
)

// Reporter formats and outputs workflow results.
type Reporter interface {
	// ReportRun reports one finished run.
	ReportRun(result *engine.RunResult)

	// ReportSummary reports the whole session once all runs finished.
	ReportSummary(result *engine.SuiteResult)
}

func runName(result *engine.RunResult) string {
	wf := result.Workflow
	name := wf.Name
	if name == "" {
		name = wf.ID
	}
	return name
}

// TextReporter outputs human-readable text reports.
type TextReporter struct {
	writer  io.Writer
	verbose bool
}

// NewTextReporter creates a new text reporter.
func NewTextReporter(w io.Writer, verbose bool) *TextReporter {
	return &TextReporter{
		writer:  w,
		verbose: verbose,
	}
}

// ReportRun prints the run verdict, the failing step's diagnostic and, in
// verbose mode, every step grouped by phase.
func (r *TextReporter) ReportRun(result *engine.RunResult) {
	status := "PASS"
	if !result.Passed {
		status = "FAIL"
	}
	fmt.Fprintf(r.writer, "[%s] %s #%d (%s)\n",
		status, runName(result), result.Iteration, result.Duration.Round(time.Millisecond))

	if r.verbose {
		phase := ""
		for _, sr := range result.StepResults {
			if sr.Step.Phase != phase {
				phase = sr.Step.Phase
				fmt.Fprintf(r.writer, "  %s\n", phase)
			}
			stepStatus := "PASS"
			if !sr.Passed {
				stepStatus = "FAIL"
			}
			fmt.Fprintf(r.writer, "    [%s] %d: %s (%s)\n",
				stepStatus, sr.StepIndex+1, sr.Step.Label(), sr.Duration.Round(time.Millisecond))

			for _, key := range slices.Sorted(maps.Keys(sr.ExpectResults)) {
				er := sr.ExpectResults[key]
				expStatus := "OK"
				if !er.Passed {
					expStatus = "FAILED"
				}
				fmt.Fprintf(r.writer, "           [%s] %s\n", expStatus, er.Message)
			}
		}
	}

	if !result.Passed {
		if sr := result.FailedStep(); sr != nil {
			fmt.Fprintf(r.writer, "       Step %d (%s): %s\n", sr.StepIndex+1, sr.Step.Label(), result.Diagnostic)
		} else {
			fmt.Fprintf(r.writer, "       %s\n", result.Diagnostic)
		}
	}
}

// ReportSummary prints the session totals.
func (r *TextReporter) ReportSummary(result *engine.SuiteResult) {
	fmt.Fprintf(r.writer, "\n--- %s ---\n", result.Name)
	fmt.Fprintf(r.writer, "Runs:     %d\n", len(result.Results))
	fmt.Fprintf(r.writer, "Passed:   %d\n", result.PassCount)
	fmt.Fprintf(r.writer, "Failed:   %d\n", result.FailCount)
	fmt.Fprintf(r.writer, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.SessionID != "" {
		fmt.Fprintf(r.writer, "Session:  %s\n", result.SessionID)
	}
}

// JSONReporter writes the whole session as one JSON document.
type JSONReporter struct {
	writer io.Writer
	pretty bool
}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter(w io.Writer, pretty bool) *JSONReporter {
	return &JSONReporter{
		writer: w,
		pretty: pretty,
	}
}

// JSONSuiteResult is the JSON representation of a session.
type JSONSuiteResult struct {
	Name      string          `json:"name"`
	SessionID string          `json:"session_id,omitempty"`
	Duration  string          `json:"duration"`
	Total     int             `json:"total"`
	Passed    int             `json:"passed"`
	Failed    int             `json:"failed"`
	Runs      []JSONRunResult `json:"runs"`
}

// JSONRunResult is the JSON representation of one run.
type JSONRunResult struct {
	Workflow   string           `json:"workflow"`
	Name       string           `json:"name"`
	Iteration  int              `json:"iteration"`
	Status     string           `json:"status"`
	Duration   string           `json:"duration"`
	Diagnostic string           `json:"diagnostic,omitempty"`
	Error      string           `json:"error,omitempty"`
	Steps      []JSONStepResult `json:"steps,omitempty"`
}

// JSONStepResult is the JSON representation of a step result.
type JSONStepResult struct {
	Index      int                   `json:"index"`
	Phase      string                `json:"phase,omitempty"`
	Action     string                `json:"action"`
	Status     string                `json:"status"`
	Duration   string                `json:"duration"`
	Diagnostic string                `json:"diagnostic,omitempty"`
	Expects    map[string]JSONExpect `json:"expects,omitempty"`
	Outputs    map[string]any        `json:"outputs,omitempty"`
}

// JSONExpect is the JSON representation of an expectation result.
type JSONExpect struct {
	Passed   bool   `json:"passed"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Message  string `json:"message"`
}

// ReportRun does nothing; runs are written with the summary so the
// output is a single document.
func (r *JSONReporter) ReportRun(*engine.RunResult) {}

// ReportSummary writes the session in JSON format.
func (r *JSONReporter) ReportSummary(result *engine.SuiteResult) {
	jr := JSONSuiteResult{
		Name:      result.Name,
		SessionID: result.SessionID,
		Duration:  result.Duration.Round(time.Millisecond).String(),
		Total:     len(result.Results),
		Passed:    result.PassCount,
		Failed:    result.FailCount,
		Runs:      make([]JSONRunResult, 0, len(result.Results)),
	}
	for _, run := range result.Results {
		jr.Runs = append(jr.Runs, runToJSON(run))
	}
	r.writeJSON(jr)
}

func status(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func runToJSON(result *engine.RunResult) JSONRunResult {
	jr := JSONRunResult{
		Workflow:   result.Workflow.ID,
		Name:       runName(result),
		Iteration:  result.Iteration,
		Status:     status(result.Passed),
		Duration:   result.Duration.Round(time.Millisecond).String(),
		Diagnostic: result.Diagnostic,
	}
	if result.Error != nil {
		jr.Error = result.Error.Error()
	}

	for _, sr := range result.StepResults {
		jsr := JSONStepResult{
			Index:      sr.StepIndex,
			Phase:      sr.Step.Phase,
			Action:     sr.Step.Action,
			Status:     status(sr.Passed),
			Duration:   sr.Duration.Round(time.Millisecond).String(),
			Diagnostic: sr.Diagnostic,
			Outputs:    sr.Output,
		}
		if len(sr.ExpectResults) > 0 {
			jsr.Expects = make(map[string]JSONExpect, len(sr.ExpectResults))
		}
		for key, er := range sr.ExpectResults {
			jsr.Expects[key] = JSONExpect{
				Passed:   er.Passed,
				Expected: er.Expected,
				Actual:   er.Actual,
				Message:  er.Message,
			}
		}
		jr.Steps = append(jr.Steps, jsr)
	}
	return jr
}

func (r *JSONReporter) writeJSON(v any) {
	var data []byte
	var err error

	if r.pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		fmt.Fprintf(r.writer, `{"error": "failed to marshal: %s"}`, err)
		return
	}

	fmt.Fprintln(r.writer, string(data))
}

// JUnitReporter outputs JUnit XML for CI integration: one testsuite per
// run, one testcase per step.
type JUnitReporter struct {
	writer io.Writer
}

// NewJUnitReporter creates a new JUnit reporter.
func NewJUnitReporter(w io.Writer) *JUnitReporter {
	return &JUnitReporter{writer: w}
}

// ReportRun does nothing; runs are written with the summary.
func (r *JUnitReporter) ReportRun(*engine.RunResult) {}

// ReportSummary writes the session in JUnit XML format.
func (r *JUnitReporter) ReportSummary(result *engine.SuiteResult) {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<testsuites name="%s" tests="%d" failures="%d" time="%.3f">`,
		escapeXML(result.Name), len(result.Results), result.FailCount, result.Duration.Seconds())
	b.WriteString("\n")

	for _, run := range result.Results {
		failures := 0
		if !run.Passed {
			failures = 1
		}
		suite := fmt.Sprintf("%s #%d", runName(run), run.Iteration)
		fmt.Fprintf(&b, `  <testsuite name="%s" tests="%d" failures="%d" time="%.3f">`,
			escapeXML(suite), len(run.StepResults), failures, run.Duration.Seconds())
		b.WriteString("\n")

		for _, sr := range run.StepResults {
			fmt.Fprintf(&b, `    <testcase name="%s" classname="%s" time="%.3f">`,
				escapeXML(fmt.Sprintf("%d %s", sr.StepIndex+1, sr.Step.Label())),
				escapeXML(run.Workflow.ID+"."+strings.ReplaceAll(sr.Step.Phase, " ", "_")),
				sr.Duration.Seconds())
			b.WriteString("\n")

			if !sr.Passed {
				fmt.Fprintf(&b, `      <failure message="%s">`, escapeXML(sr.Diagnostic))
				b.WriteString("<![CDATA[")
				if sr.Error != nil {
					b.WriteString(sr.Error.Error())
				}
				b.WriteString("]]></failure>\n")
			}
			b.WriteString("    </testcase>\n")
		}
		b.WriteString("  </testsuite>\n")
	}

	b.WriteString("</testsuites>\n")
	fmt.Fprint(r.writer, b.String())
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
