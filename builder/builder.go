package builder

import (
	"fmt"
	"time"

	"github.com/sicko7947/smartflow"
)

// WorkflowBuilder provides a fluent API for building workflow definitions
type WorkflowBuilder struct {
	workflow *smartflow.Workflow
}

// NewWorkflow creates a new workflow builder
func NewWorkflow(id, name string) *WorkflowBuilder {
	return &WorkflowBuilder{
		workflow: &smartflow.Workflow{
			ID:      id,
			Name:    name,
			Version: 1,
			Steps:   []smartflow.WorkflowStep{},
		},
	}
}

// WithDescription sets the workflow description
func (b *WorkflowBuilder) WithDescription(description string) *WorkflowBuilder {
	b.workflow.Description = description
	return b
}

// WithUserID sets the owning user
func (b *WorkflowBuilder) WithUserID(userID string) *WorkflowBuilder {
	b.workflow.UserID = userID
	return b
}

// WithVersion sets the workflow version
func (b *WorkflowBuilder) WithVersion(version int) *WorkflowBuilder {
	b.workflow.Version = version
	return b
}

// WithTrigger declares a trigger that may start the workflow
func (b *WorkflowBuilder) WithTrigger(triggerType smartflow.TriggerType, config map[string]any) *WorkflowBuilder {
	b.workflow.Triggers = append(b.workflow.Triggers, smartflow.Trigger{Type: triggerType, Config: config})
	return b
}

// WithOptimization sets the self-optimization policy
func (b *WorkflowBuilder) WithOptimization(policy smartflow.OptimizationPolicy) *WorkflowBuilder {
	b.workflow.Optimization = policy
	return b
}

// ThenStep chains the given step after the last added step
func (b *WorkflowBuilder) ThenStep(step smartflow.WorkflowStep) *WorkflowBuilder {
	step.Parallel = false
	b.workflow.Steps = append(b.workflow.Steps, step)
	return b
}

// Then builds a step from options and chains it after the last added step
func (b *WorkflowBuilder) Then(id string, stepType smartflow.StepType, opts ...StepOption) *WorkflowBuilder {
	return b.ThenStep(NewStep(id, stepType, opts...))
}

// ThenIf chains a step that only runs when every condition holds against
// the payload it receives
func (b *WorkflowBuilder) ThenIf(step smartflow.WorkflowStep, conditions ...smartflow.Condition) *WorkflowBuilder {
	step.Conditions = append(step.Conditions, conditions...)
	return b.ThenStep(step)
}

// Parallel adds steps that run concurrently over the same input after the
// last step. Adjacent Parallel calls form a single group.
func (b *WorkflowBuilder) Parallel(steps ...smartflow.WorkflowStep) *WorkflowBuilder {
	for _, step := range steps {
		step.Parallel = true
		b.workflow.Steps = append(b.workflow.Steps, step)
	}
	return b
}

// Sequence adds multiple steps and chains them together in order
func (b *WorkflowBuilder) Sequence(steps ...smartflow.WorkflowStep) *WorkflowBuilder {
	for _, step := range steps {
		b.ThenStep(step)
	}
	return b
}

// Build finalizes and validates the workflow
func (b *WorkflowBuilder) Build() (*smartflow.Workflow, error) {
	if err := Validate(b.workflow); err != nil {
		return nil, err
	}

	wf := b.workflow.Clone()
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now
	return wf, nil
}

// MustBuild finalizes and validates the workflow, panics on error
func (b *WorkflowBuilder) MustBuild() *smartflow.Workflow {
	wf, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build workflow: %v", err))
	}
	return wf
}
