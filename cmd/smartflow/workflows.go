package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/builder"
	"gopkg.in/yaml.v3"
)

// LoadWorkflowFile decodes and validates one YAML workflow definition
func LoadWorkflowFile(path string) (*smartflow.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var wf smartflow.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", path, err)
	}
	if wf.Version < 1 {
		wf.Version = 1
	}
	if err := builder.Validate(&wf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &wf, nil
}

// LoadWorkflows expands the patterns and loads every matching file.
// Duplicate workflow ids are rejected.
func LoadWorkflows(patterns []string) ([]*smartflow.Workflow, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid workflow pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no workflow files match %q", pattern)
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)

	seen := make(map[string]string, len(paths))
	workflows := make([]*smartflow.Workflow, 0, len(paths))
	for _, path := range paths {
		wf, err := LoadWorkflowFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[wf.ID]; dup {
			return nil, fmt.Errorf("workflow %s is defined in both %s and %s", wf.ID, prev, path)
		}
		seen[wf.ID] = path
		workflows = append(workflows, wf)
	}
	return workflows, nil
}
