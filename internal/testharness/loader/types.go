// Package loader provides YAML workflow loading for the provisioning tester.
package loader

import "strconv"

// Workflow is a provisioning workflow loaded from YAML.
type Workflow struct {
	// ID is the unique workflow identifier (e.g., "nrf54l-lifecycle").
	ID string `yaml:"id"`

	// Name is a human-readable name for the workflow.
	Name string `yaml:"name"`

	// Description explains what the workflow validates.
	Description string `yaml:"description"`

	// Vars are default values for {{ variable }} references in step params.
	// Runner configuration overrides them.
	Vars map[string]any `yaml:"vars,omitempty"`

	// Steps are the actions to execute in order.
	Steps []Step `yaml:"steps"`

	// Timeout is the maximum duration for one run (e.g., "10m").
	Timeout string `yaml:"timeout,omitempty"`

	// Tags for categorizing workflows.
	Tags []string `yaml:"tags,omitempty"`

	// File is the path the workflow was loaded from, empty if embedded.
	File string `yaml:"-"`
}

// Step represents a single action in a workflow.
type Step struct {
	// Phase groups consecutive steps under one heading (e.g., "unlock").
	Phase string `yaml:"phase,omitempty"`

	// Action is the action to perform (e.g., "swd_scan", "erase_mass").
	Action string `yaml:"action"`

	// Params are parameters for the action.
	Params map[string]any `yaml:"params,omitempty"`

	// Expect defines expected outcomes after the action.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Failure is the diagnostic reported when the action or one of its
	// expectations fails (e.g., "Could not attach to CTRL-AP").
	Failure string `yaml:"failure,omitempty"`

	// Timeout overrides the engine step timeout for this step.
	Timeout string `yaml:"timeout,omitempty"`

	// Description explains what this step does.
	Description string `yaml:"description,omitempty"`

	// Line is the source line of the step, 0 if unknown.
	Line int `yaml:"-"`
}

// Label returns the description of the step, falling back to its action.
func (s *Step) Label() string {
	if s.Description != "" {
		return s.Description
	}
	return s.Action
}

// LoadError provides details about a workflow loading error.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Line is the line number where the error occurred (0 if unknown).
	Line int

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	file := e.File
	if file == "" {
		file = "<workflow>"
	}
	msg := file
	if e.Line > 0 {
		msg += ":" + strconv.Itoa(e.Line)
	}
	msg += ": " + e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}
