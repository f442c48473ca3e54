package engine

import (
	"github.com/sicko7947/smartflow"
)

// StepGroup is a run of steps executed together. Parallel groups run their
// steps concurrently over the same input; sequential groups hold one step.
type StepGroup struct {
	Parallel bool
	Steps    []smartflow.WorkflowStep
}

// GroupSteps partitions an ordered step list into execution groups.
// Consecutive steps flagged Parallel are merged into one parallel group and
// every other step becomes its own sequential group, so concatenating the
// groups reproduces the input order.
//
// Only the Parallel flag is consulted: two dependent steps that are both
// flagged parallel will race.
func GroupSteps(steps []smartflow.WorkflowStep) []StepGroup {
	groups := make([]StepGroup, 0, len(steps))
	open := -1 // index of the parallel group being extended

	for _, step := range steps {
		if !step.Parallel {
			open = -1
			groups = append(groups, StepGroup{Parallel: false, Steps: []smartflow.WorkflowStep{step}})
			continue
		}

		if open < 0 {
			groups = append(groups, StepGroup{Parallel: true})
			open = len(groups) - 1
		}
		groups[open].Steps = append(groups[open].Steps, step)
	}

	return groups
}
