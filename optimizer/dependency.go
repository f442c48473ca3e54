package optimizer

import "github.com/sicko7947/smartflow"

// readFields returns the top-level payload fields a step reads: the roots
// of its condition fields plus any config.inputs
func readFields(step *smartflow.WorkflowStep) map[string]struct{} {
	fields := make(map[string]struct{})
	for _, c := range step.Conditions {
		if root := c.RootField(); root != "" {
			fields[root] = struct{}{}
		}
	}
	for _, in := range smartflow.ConfigStrings(step.Config, smartflow.ConfigKeyInputs) {
		fields[in] = struct{}{}
	}
	return fields
}

// hasDataDependency reports whether next may read something prev produces.
// Steps already flagged parallel are treated as independent. A step that
// does not declare config.outputs is assumed to feed everything after it.
func hasDataDependency(prev, next *smartflow.WorkflowStep) bool {
	if prev.Parallel && next.Parallel {
		return false
	}
	if !smartflow.HasConfigKey(prev.Config, smartflow.ConfigKeyOutputs) {
		return true
	}

	reads := readFields(next)
	for _, out := range smartflow.ConfigStrings(prev.Config, smartflow.ConfigKeyOutputs) {
		if _, ok := reads[out]; ok {
			return true
		}
	}
	return false
}

// PlanParallelRuns returns runs (as step indices) of at least two adjacent,
// not yet parallel, mutually independent steps that could be marked
// parallel. The steps around a run stay unmarked and are not parallel, so
// marked runs never fuse with each other or with existing parallel groups.
func PlanParallelRuns(steps []smartflow.WorkflowStep) [][]int {
	var runs [][]int
	var current []int

	flush := func() {
		if len(current) >= 2 {
			runs = append(runs, current)
		}
		current = nil
	}

	separator := false
	for i := range steps {
		step := &steps[i]
		if step.Parallel {
			// the step before a parallel group cannot join a run
			if len(current) > 0 {
				current = current[:len(current)-1]
			}
			flush()
			separator = true
			continue
		}
		if separator {
			separator = false
			continue
		}

		independent := len(current) > 0
		for _, j := range current {
			if hasDataDependency(&steps[j], step) || hasDataDependency(step, &steps[j]) {
				independent = false
				break
			}
		}

		switch {
		case independent:
			current = append(current, i)
		case len(current) >= 2:
			// step i stays unmarked between this run and the next
			flush()
		default:
			current = []int{i}
		}
	}
	flush()

	return runs
}
