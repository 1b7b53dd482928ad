package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/zyp/gdb-autotest/internal/testharness/loader"
)

// Engine executes workflows.
type Engine struct {
	config   *EngineConfig
	handlers map[string]ActionHandler
	checkers map[string]ExpectChecker
	mu       sync.RWMutex
}

// New creates a new engine with default configuration.
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new engine with the given configuration.
func NewWithConfig(config *EngineConfig) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	e := &Engine{
		config:   config,
		handlers: make(map[string]ActionHandler),
		checkers: make(map[string]ExpectChecker),
	}

	e.RegisterChecker(CheckerNameDefault, defaultChecker)
	e.RegisterChecker(CheckerNameValueInRange, CheckerValueInRange)
	e.RegisterChecker(CheckerNameValueBits, CheckerValueBits)
	e.RegisterChecker(CheckerNameTextContains, CheckerTextContains)

	return e
}

// RegisterHandler registers an action handler.
func (e *Engine) RegisterHandler(action string, handler ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[action] = handler
}

// RegisterChecker registers an expectation checker.
func (e *Engine) RegisterChecker(key string, checker ExpectChecker) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkers[key] = checker
}

// Actions returns the names of all registered actions, sorted.
func (e *Engine) Actions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.handlers))
}

// Run executes a single workflow. Steps run strictly in order; the first
// failing step ends the run.
func (e *Engine) Run(ctx context.Context, wf *loader.Workflow) *RunResult {
	return e.RunIteration(ctx, wf, 1)
}

// RunIteration executes wf as the given iteration of a session.
func (e *Engine) RunIteration(ctx context.Context, wf *loader.Workflow, iteration int) *RunResult {
	result := &RunResult{
		Workflow:  wf,
		Iteration: iteration,
		StartTime: time.Now(),
	}

	timeout := e.config.DefaultTimeout
	if wf.Timeout != "" {
		if d, err := time.ParseDuration(wf.Timeout); err == nil {
			timeout = d
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	state := NewExecutionState(runCtx)
	for k, v := range wf.Vars {
		state.Set(k, v)
	}
	for k, v := range e.config.Vars {
		state.Set(k, v)
	}
	state.Set(InternalIteration, iteration)

	for i := range wf.Steps {
		stepResult := e.executeStep(runCtx, &wf.Steps[i], i, state)
		result.StepResults = append(result.StepResults, stepResult)

		if e.config.OnStepComplete != nil {
			e.config.OnStepComplete(result, stepResult)
		}

		if !stepResult.Passed {
			result.Error = stepResult.Error
			result.Diagnostic = stepResult.Diagnostic
			break
		}
	}

	result.Passed = result.Error == nil && len(result.StepResults) > 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	return result
}

// executeStep executes a single step.
func (e *Engine) executeStep(ctx context.Context, step *loader.Step, index int, state *ExecutionState) *StepResult {
	result := &StepResult{
		Step:          step,
		StepIndex:     index,
		ExpectResults: make(map[string]*ExpectResult),
		Output:        make(map[string]any),
	}

	startTime := time.Now()
	defer func() { result.Duration = time.Since(startTime) }()

	timeout := e.config.StepTimeout
	if step.Timeout != "" {
		if d, err := time.ParseDuration(step.Timeout); err == nil {
			timeout = d
		}
	}

	// Resolve {{ variable }} references before the handler sees the step.
	resolved := *step
	resolved.Params = InterpolateParams(step.Params, state)
	result.Step = &resolved
	if names := Unresolved(resolved.Params); len(names) > 0 {
		e.fail(result, fmt.Errorf("%w: %s", ErrUndefinedVariable, names[0]))
		return result
	}

	// A wait may outlast the step timeout.
	if pause := StepDuration(resolved.Params); pause > 0 {
		timeout = max(timeout, pause+10*time.Second)
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	e.mu.RLock()
	handler, exists := e.handlers[step.Action]
	e.mu.RUnlock()

	if !exists {
		e.fail(result, fmt.Errorf("%w: %s", ErrUnknownAction, step.Action))
		return result
	}

	outputs, err := handler(stepCtx, &resolved, state)
	for k, v := range outputs {
		state.Set(k, v)
		result.Output[k] = v
	}
	if err != nil {
		e.fail(result, err)
		return result
	}

	state.Set(InternalStepOutput, maps.Clone(result.Output))

	// Expectations are checked in key order so the reported failure is stable.
	result.Passed = true
	expect := InterpolateParams(step.Expect, state)
	for _, key := range slices.Sorted(maps.Keys(expect)) {
		expectResult := e.checkExpectation(key, expect[key], state)
		result.ExpectResults[key] = expectResult
		if !expectResult.Passed && result.Passed {
			result.Passed = false
			result.Error = fmt.Errorf("%w: %s - %s", ErrExpectation, key, expectResult.Message)
			result.Diagnostic = step.Failure
			if result.Diagnostic == "" {
				result.Diagnostic = expectResult.Message
			}
		}
	}

	return result
}

// fail marks result as failed with err and derives its diagnostic. An
// operation failure reports the step's failure text; other errors are
// reported in full, prefixed with it.
func (e *Engine) fail(result *StepResult, err error) {
	result.Passed = false
	result.Error = err

	failure := result.Step.Failure
	switch {
	case failure == "":
		result.Diagnostic = err.Error()
	case errors.Is(err, ErrActionFailed):
		result.Diagnostic = failure
	default:
		result.Diagnostic = failure + ": " + err.Error()
	}
}

// checkExpectation checks a single expectation.
func (e *Engine) checkExpectation(key string, expected any, state *ExecutionState) *ExpectResult {
	e.mu.RLock()
	checker, exists := e.checkers[key]
	if !exists {
		checker = e.checkers[CheckerNameDefault]
	}
	e.mu.RUnlock()

	return checker(key, expected, state)
}

// defaultChecker compares the output named key with expected. The literal
// "present" only requires a non-nil output. Lists of maps match when every
// expected map is a subset of the output map at the same position.
func defaultChecker(key string, expected any, state *ExecutionState) *ExpectResult {
	res := &ExpectResult{Key: key, Expected: expected}
	actual, exists := state.Get(key)
	if !exists {
		res.Message = fmt.Sprintf("key %q not found in outputs", key)
		return res
	}
	res.Actual = actual

	if expected == "present" {
		res.Passed = actual != nil
		res.Message = fmt.Sprintf("%s = %v", key, actual)
		return res
	}

	if reason := mismatch(expected, actual); reason != "" {
		res.Message = fmt.Sprintf("%s: %s", key, reason)
		return res
	}
	res.Passed = true
	res.Message = fmt.Sprintf("%s = %v", key, expected)
	return res
}

// mismatch describes how actual differs from expected, or returns "" when
// they match. Values are compared by their printed form so YAML integers
// match uint64 register values.
func mismatch(expected, actual any) string {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := asMap(actual)
		if !ok {
			return fmt.Sprintf("expected map, got %T", actual)
		}
		for _, k := range slices.Sorted(maps.Keys(exp)) {
			av, has := act[k]
			if !has {
				return fmt.Sprintf("missing key %q", k)
			}
			if reason := mismatch(exp[k], av); reason != "" {
				return k + ": " + reason
			}
		}
		return ""
	case []any:
		act, ok := asList(actual)
		if !ok {
			return fmt.Sprintf("expected %v, got %v", expected, actual)
		}
		if len(act) != len(exp) {
			return fmt.Sprintf("expected %d items, got %d", len(exp), len(act))
		}
		for i := range exp {
			if reason := mismatch(exp[i], act[i]); reason != "" {
				return fmt.Sprintf("item[%d]: %s", i, reason)
			}
		}
		return ""
	}
	if fmt.Sprint(expected) != fmt.Sprint(actual) {
		return fmt.Sprintf("expected %v, got %v", expected, actual)
	}
	return ""
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// RunSuite executes every workflow in order, each the given number of times.
func (e *Engine) RunSuite(ctx context.Context, workflows []*loader.Workflow, repeat int) *SuiteResult {
	result := &SuiteResult{}

	startTime := time.Now()
	defer func() { result.Duration = time.Since(startTime) }()

	repeat = max(repeat, 1)

	for _, wf := range workflows {
		for iteration := 1; iteration <= repeat; iteration++ {
			if ctx.Err() != nil {
				return result
			}

			run := e.RunIteration(ctx, wf, iteration)
			result.Results = append(result.Results, run)

			if run.Passed {
				result.PassCount++
			} else {
				result.FailCount++
			}

			if e.config.OnRunComplete != nil {
				e.config.OnRunComplete(run)
			}

			if !run.Passed && e.config.StopOnFirstFailure {
				return result
			}
		}
	}

	return result
}

// StepDuration returns the pause a step requests through duration_ms, or
// zero.
func StepDuration(params map[string]any) time.Duration {
	ms, ok := ToUint64(params["duration_ms"])
	if !ok {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
