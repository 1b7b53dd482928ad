// Package engine runs provisioning workflows step by step.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/zyp/gdb-autotest/internal/testharness/loader"
)

var (
	// ErrActionFailed marks an action whose operation reported failure
	// (for example an attach the probe refused). Handlers wrap it with
	// the adapter's message.
	ErrActionFailed = errors.New("action failed")

	// ErrExpectation marks a step whose outputs did not meet an expectation.
	ErrExpectation = errors.New("expectation failed")

	// ErrUnknownAction marks a step naming an unregistered action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrUndefinedVariable marks a {{ variable }} reference without value.
	ErrUndefinedVariable = errors.New("undefined variable")
)

// RunResult represents the outcome of one workflow run.
type RunResult struct {
	// Workflow is the workflow that was executed.
	Workflow *loader.Workflow

	// Iteration counts runs of the same workflow in one session, from 1.
	Iteration int

	// Passed indicates if all steps passed.
	Passed bool

	// Error is the error that caused failure, if any.
	Error error

	// Diagnostic is the failure text of the first failing step.
	Diagnostic string

	// StepResults contains results for each executed step.
	StepResults []*StepResult

	// Duration is how long the run took.
	Duration time.Duration

	// StartTime when the run started.
	StartTime time.Time

	// EndTime when the run finished.
	EndTime time.Time
}

// FailedStep returns the step result that ended the run, or nil.
func (r *RunResult) FailedStep() *StepResult {
	for _, sr := range r.StepResults {
		if !sr.Passed {
			return sr
		}
	}
	return nil
}

// StepResult represents the outcome of a single step.
type StepResult struct {
	// Step is the step that was executed, with interpolated params.
	Step *loader.Step

	// StepIndex is the index of this step (0-based).
	StepIndex int

	// Passed indicates if the step passed.
	Passed bool

	// Error is the error that caused failure, if any.
	Error error

	// Diagnostic is the human-readable failure, empty when passed.
	Diagnostic string

	// ExpectResults maps expectation keys to their assertion results.
	ExpectResults map[string]*ExpectResult

	// Duration is how long the step took.
	Duration time.Duration

	// Output contains any captured output from the step.
	Output map[string]any
}

// ExpectResult represents the result of checking an expectation.
type ExpectResult struct {
	// Key is the expectation key (e.g., "topology").
	Key string

	// Expected is the expected value.
	Expected any

	// Actual is the actual value.
	Actual any

	// Passed indicates if the expectation was met.
	Passed bool

	// Message describes the result.
	Message string
}

// SuiteResult represents the outcome of several runs.
type SuiteResult struct {
	// Name describes the suite in reports.
	Name string

	// SessionID identifies the debugger session the runs shared.
	SessionID string

	// Results contains results for each run in execution order.
	Results []*RunResult

	// PassCount is the number of passed runs.
	PassCount int

	// FailCount is the number of failed runs.
	FailCount int

	// Duration is the total time for all runs.
	Duration time.Duration
}

// Passed reports whether every run passed.
func (s *SuiteResult) Passed() bool {
	return s.FailCount == 0 && len(s.Results) > 0
}

// ActionHandler processes a workflow step action. It returns outputs to
// make available for subsequent steps, and an error if the action failed.
type ActionHandler func(ctx context.Context, step *loader.Step, state *ExecutionState) (map[string]any, error)

// ExpectChecker checks an expectation against actual results.
type ExpectChecker func(key string, expected any, state *ExecutionState) *ExpectResult

// ExecutionState holds state during a workflow run.
type ExecutionState struct {
	// Outputs accumulated from previous steps and seeded variables.
	Outputs map[string]any

	// Context for cancellation.
	Context context.Context

	// Custom state that handlers can use.
	Custom map[string]any
}

// NewExecutionState creates a new execution state.
func NewExecutionState(ctx context.Context) *ExecutionState {
	return &ExecutionState{
		Outputs: make(map[string]any),
		Custom:  make(map[string]any),
		Context: ctx,
	}
}

// Get retrieves a value from outputs. A key of the form "{{ name }}" is
// looked up as name.
func (s *ExecutionState) Get(key string) (any, bool) {
	if m := variablePattern.FindStringSubmatch(key); m != nil && m[0] == key {
		key = m[1]
	}
	v, ok := s.Outputs[key]
	return v, ok
}

// Set stores a value in outputs.
func (s *ExecutionState) Set(key string, value any) {
	s.Outputs[key] = value
}

// EngineConfig configures the engine.
type EngineConfig struct {
	// DefaultTimeout bounds one workflow run without its own timeout.
	DefaultTimeout time.Duration

	// StepTimeout is the default timeout for individual steps.
	StepTimeout time.Duration

	// Vars seed the execution state of every run. They override the
	// workflow's own vars.
	Vars map[string]any

	// StopOnFirstFailure stops a suite after the first failed run.
	StopOnFirstFailure bool

	// OnStepComplete is called after every executed step.
	OnStepComplete func(run *RunResult, step *StepResult)

	// OnRunComplete is called after every run of a suite.
	OnRunComplete func(run *RunResult)
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		DefaultTimeout: 10 * time.Minute,
		StepTimeout:    2 * time.Minute,
	}
}
