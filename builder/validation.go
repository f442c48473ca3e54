package builder

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/itchyny/gojq"
	"github.com/sicko7947/smartflow"
)

// Validate performs comprehensive validation on a workflow definition and
// reports every problem found as a single VALIDATION error
func Validate(wf *smartflow.Workflow) error {
	if wf == nil {
		return smartflow.NewWorkflowError(smartflow.ErrCodeValidation, "workflow is nil")
	}

	var errs []error
	if wf.ID == "" {
		errs = append(errs, errors.New("workflow id is required"))
	}
	if len(wf.Steps) == 0 {
		errs = append(errs, errors.New("workflow has no steps"))
	}
	if wf.Version < 0 {
		errs = append(errs, fmt.Errorf("version must not be negative, got %d", wf.Version))
	}

	seen := make(map[string]struct{}, len(wf.Steps))
	for i := range wf.Steps {
		step := &wf.Steps[i]
		if step.ID == "" {
			errs = append(errs, fmt.Errorf("step %d has no id", i))
		} else if _, dup := seen[step.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate step id %q", step.ID))
		}
		seen[step.ID] = struct{}{}

		errs = append(errs, ValidateStep(step)...)
	}

	for _, trig := range wf.Triggers {
		if !validTrigger(trig.Type) {
			errs = append(errs, fmt.Errorf("unknown trigger type %q", trig.Type))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	joined := errors.Join(errs...)
	return smartflow.NewWorkflowError(
		smartflow.ErrCodeValidation,
		fmt.Sprintf("invalid workflow %q: %v", wf.ID, joined),
	).WithCause(joined)
}

// ValidateStep checks a single step's type, conditions, retry policy and
// any expressions in its config
func ValidateStep(step *smartflow.WorkflowStep) []error {
	var errs []error
	if !step.Type.Valid() {
		errs = append(errs, fmt.Errorf("step %q: unknown step type %q", step.ID, step.Type))
	}

	for _, c := range step.Conditions {
		if c.Field == "" {
			errs = append(errs, fmt.Errorf("step %q: condition field is required", step.ID))
		}
		if !c.Operator.Valid() {
			errs = append(errs, fmt.Errorf("step %q: unknown condition operator %q", step.ID, c.Operator))
		}
	}

	if step.Retry != nil {
		if step.Retry.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("step %q: maxRetries must not be negative", step.ID))
		}
		if step.Retry.BackoffMultiplier < 0 {
			errs = append(errs, fmt.Errorf("step %q: backoffMultiplier must not be negative", step.ID))
		}
	}

	for _, rule := range smartflow.ConfigStrings(step.Config, smartflow.ConfigKeyRules) {
		if _, err := expr.Compile(rule); err != nil {
			errs = append(errs, fmt.Errorf("step %q: invalid rule %q: %w", step.ID, rule, err))
		}
	}
	if query, ok := step.Config[smartflow.ConfigKeyJQ].(string); ok && query != "" {
		if _, err := gojq.Parse(query); err != nil {
			errs = append(errs, fmt.Errorf("step %q: invalid jq expression: %w", step.ID, err))
		}
	}

	return errs
}

func validTrigger(t smartflow.TriggerType) bool {
	switch t {
	case smartflow.TriggerManual, smartflow.TriggerUpload, smartflow.TriggerSchedule, smartflow.TriggerWebhook:
		return true
	}
	return false
}
