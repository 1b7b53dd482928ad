package loader

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultWorkflow is the ID of the built-in lock-lifecycle workflow.
const DefaultWorkflow = "nrf54l-lifecycle"

//go:embed workflows/*.yaml
var builtin embed.FS

// ParseWorkflow parses a workflow from YAML bytes.
func ParseWorkflow(data []byte) (*Workflow, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
	}
	if len(root.Content) == 0 {
		return nil, &LoadError{Message: "empty workflow"}
	}

	var wf Workflow
	if err := root.Decode(&wf); err != nil {
		return nil, &LoadError{
			Message: "failed to decode workflow",
			Cause:   err,
		}
	}
	stepLines(&root, wf.Steps)

	if wf.ID == "" {
		return nil, &LoadError{Message: "workflow ID is required"}
	}
	if len(wf.Steps) == 0 {
		return nil, &LoadError{Message: "workflow must have at least one step"}
	}

	phase := ""
	for i := range wf.Steps {
		s := &wf.Steps[i]
		if s.Action == "" {
			return nil, &LoadError{
				Line:    s.Line,
				Message: fmt.Sprintf("step %d has no action", i+1),
			}
		}
		// A step without phase continues the previous one.
		if s.Phase == "" {
			s.Phase = phase
		}
		phase = s.Phase
	}

	return &wf, nil
}

// stepLines records the source line of every step.
func stepLines(root *yaml.Node, steps []Step) {
	doc := root
	if doc.Kind == yaml.DocumentNode {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "steps" {
			continue
		}
		for j, n := range doc.Content[i+1].Content {
			if j < len(steps) {
				steps[j].Line = n.Line
			}
		}
	}
}

// LoadWorkflow loads a workflow from a file.
func LoadWorkflow(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	wf, err := ParseWorkflow(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{
			File:    path,
			Message: err.Error(),
		}
	}
	wf.File = path

	return wf, nil
}

// LoadDirectory loads all workflows from a directory, sorted by file name.
// Only files with .yaml or .yml extensions are loaded.
func LoadDirectory(dir string) ([]*Workflow, error) {
	var workflows []*Workflow

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{
			File:    dir,
			Message: "failed to read directory",
			Cause:   err,
		}
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		wf, err := LoadWorkflow(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, wf)
	}

	return workflows, nil
}

// Load loads the workflows at path, which may name a file or a directory.
// An empty path yields the built-in default workflow.
func Load(path string) ([]*Workflow, error) {
	if path == "" {
		wf, err := Default()
		if err != nil {
			return nil, err
		}
		return []*Workflow{wf}, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to stat", Cause: err}
	}
	if info.IsDir() {
		return LoadDirectory(path)
	}
	wf, err := LoadWorkflow(path)
	if err != nil {
		return nil, err
	}
	return []*Workflow{wf}, nil
}

// Builtin returns the embedded workflow with the given ID.
func Builtin(id string) (*Workflow, error) {
	data, err := builtin.ReadFile("workflows/" + id + ".yaml")
	if err != nil {
		return nil, &LoadError{
			File:    id,
			Message: "no built-in workflow",
			Cause:   err,
		}
	}
	wf, err := ParseWorkflow(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = "builtin:" + id
		}
		return nil, err
	}
	return wf, nil
}

// Default returns the built-in lock-lifecycle workflow.
func Default() (*Workflow, error) {
	return Builtin(DefaultWorkflow)
}

// Validate checks that every step of wf names one of the given actions and
// carries parseable timeouts. All problems are reported together.
func Validate(wf *Workflow, actions []string) error {
	var errs []error
	if wf.Timeout != "" {
		if _, err := time.ParseDuration(wf.Timeout); err != nil {
			errs = append(errs, &LoadError{File: wf.File, Message: "invalid workflow timeout", Cause: err})
		}
	}
	for i := range wf.Steps {
		s := &wf.Steps[i]
		if !slices.Contains(actions, s.Action) {
			errs = append(errs, &LoadError{
				File:    wf.File,
				Line:    s.Line,
				Message: fmt.Sprintf("step %d: unknown action %q", i+1, s.Action),
			})
		}
		if s.Timeout != "" {
			if _, err := time.ParseDuration(s.Timeout); err != nil {
				errs = append(errs, &LoadError{
					File:    wf.File,
					Line:    s.Line,
					Message: fmt.Sprintf("step %d: invalid timeout", i+1),
					Cause:   err,
				})
			}
		}
	}
	return errors.Join(errs...)
}
