package builder

import (
	"errors"
	"testing"

	"github.com/sicko7947/smartflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflow(t *testing.T) {
	builder := NewWorkflow("test-workflow", "Test Workflow")
	assert.NotNil(t, builder)

	wf, err := builder.Build()
	require.Error(t, err) // Error because no steps
	assert.Nil(t, wf)
}

func TestWorkflowBuilder_Metadata(t *testing.T) {
	wf, err := NewWorkflow("test-workflow", "Test Workflow").
		WithDescription("A test workflow").
		WithUserID("user-1").
		WithVersion(3).
		WithTrigger(smartflow.TriggerUpload, map[string]any{"bucket": "docs"}).
		WithOptimization(smartflow.OptimizationPolicy{Enabled: true, AutoApply: true}).
		Then("step1", smartflow.StepTypeClassify).
		Build()

	require.NoError(t, err)
	assert.Equal(t, "test-workflow", wf.ID)
	assert.Equal(t, "Test Workflow", wf.Name)
	assert.Equal(t, "A test workflow", wf.Description)
	assert.Equal(t, "user-1", wf.UserID)
	assert.Equal(t, 3, wf.Version)
	assert.True(t, wf.HasTrigger(smartflow.TriggerUpload))
	assert.True(t, wf.Optimization.AutoApply)
	assert.False(t, wf.CreatedAt.IsZero())
	assert.Equal(t, wf.CreatedAt, wf.UpdatedAt)
}

func TestWorkflowBuilder_DefaultVersion(t *testing.T) {
	wf := NewWorkflow("wf", "WF").Then("a", smartflow.StepTypeClassify).MustBuild()
	assert.Equal(t, 1, wf.Version)
}

func TestWorkflowBuilder_Sequence(t *testing.T) {
	wf, err := NewWorkflow("test-workflow", "Test Workflow").
		Sequence(
			NewStep("step1", smartflow.StepTypeExtract),
			NewStep("step2", smartflow.StepTypeSummarize),
		).
		Build()
	require.NoError(t, err)

	require.Len(t, wf.Steps, 2)
	assert.Equal(t, "step1", wf.Steps[0].ID)
	assert.Equal(t, "step2", wf.Steps[1].ID)
	assert.False(t, wf.Steps[0].Parallel)
	assert.False(t, wf.Steps[1].Parallel)
}

func TestWorkflowBuilder_Parallel(t *testing.T) {
	wf, err := NewWorkflow("test-workflow", "Test Workflow").
		Then("extract", smartflow.StepTypeExtract).
		Parallel(
			NewStep("classify", smartflow.StepTypeClassify),
			NewStep("summarize", smartflow.StepTypeSummarize),
		).
		Then("validate", smartflow.StepTypeValidate).
		Build()
	require.NoError(t, err)

	parallel := make([]bool, len(wf.Steps))
	for i, s := range wf.Steps {
		parallel[i] = s.Parallel
	}
	assert.Equal(t, []bool{false, true, true, false}, parallel)
}

func TestWorkflowBuilder_ThenStepClearsParallel(t *testing.T) {
	step := NewStep("a", smartflow.StepTypeClassify)
	step.Parallel = true

	wf := NewWorkflow("wf", "WF").ThenStep(step).MustBuild()
	assert.False(t, wf.Steps[0].Parallel)
}

func TestWorkflowBuilder_ThenIf(t *testing.T) {
	wf, err := NewWorkflow("test-workflow", "Test Workflow").
		Then("extract", smartflow.StepTypeExtract).
		ThenIf(NewStep("summarize", smartflow.StepTypeSummarize),
			smartflow.Condition{Field: "lang", Operator: smartflow.OperatorEquals, Value: "en"},
		).
		Build()
	require.NoError(t, err)

	require.Len(t, wf.Steps[1].Conditions, 1)
	assert.Equal(t, "lang", wf.Steps[1].Conditions[0].Field)
}

func TestWorkflowBuilder_BuildReturnsCopy(t *testing.T) {
	b := NewWorkflow("wf", "WF").Then("a", smartflow.StepTypeClassify, WithConfigValue("k", 1))

	first := b.MustBuild()
	first.Steps[0].Config["k"] = 2

	second := b.MustBuild()
	assert.Equal(t, 1, second.Steps[0].Config["k"])
}

func TestWorkflowBuilder_MustBuildPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewWorkflow("wf", "WF").MustBuild()
	})
}

func TestNewStep_Options(t *testing.T) {
	step := NewStep("summarize", smartflow.StepTypeSummarize,
		WithName("Summarize document"),
		WithMaxTokens(800),
		WithCache(),
		WithInputs("document"),
		WithOutputs("summary"),
		WithCondition("lang", smartflow.OperatorEquals, "en"),
		WithRetries(3, 1.5),
		WithConfig(map[string]any{"modelTier": "premium"}),
	)

	assert.Equal(t, "Summarize document", step.Name)
	assert.Equal(t, 800, step.Config["maxTokens"])
	assert.Equal(t, true, step.Config["cache"])
	assert.Equal(t, []string{"document"}, smartflow.ConfigStrings(step.Config, "inputs"))
	assert.Equal(t, []string{"summary"}, smartflow.ConfigStrings(step.Config, "outputs"))
	assert.Equal(t, "premium", step.Config["modelTier"])
	require.Len(t, step.Conditions, 1)
	assert.Equal(t, 3, step.MaxRetries())
	assert.Equal(t, 1.5, step.BackoffMultiplier())
}

func TestNewStep_DefaultName(t *testing.T) {
	assert.Equal(t, "extract", NewStep("extract", smartflow.StepTypeExtract).Name)
}

func TestNewStep_RulesAndJQ(t *testing.T) {
	v := NewStep("v", smartflow.StepTypeValidate, WithRules("len(entities) > 0", "summary != nil"))
	assert.Equal(t, []string{"len(entities) > 0", "summary != nil"}, smartflow.ConfigStrings(v.Config, "rules"))

	tr := NewStep("t", smartflow.StepTypeTransform, WithJQ("{title: .doc.title}"))
	assert.Equal(t, "{title: .doc.title}", tr.Config["jq"])
}

func TestValidate(t *testing.T) {
	valid := func() *smartflow.Workflow {
		return &smartflow.Workflow{
			ID:      "wf",
			Version: 1,
			Steps: []smartflow.WorkflowStep{
				NewStep("a", smartflow.StepTypeExtract),
				NewStep("b", smartflow.StepTypeValidate, WithRules("len(entities) > 0")),
			},
			Triggers: []smartflow.Trigger{{Type: smartflow.TriggerManual}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*smartflow.Workflow)
		wantErr string
	}{
		{"valid", func(*smartflow.Workflow) {}, ""},
		{"missing id", func(w *smartflow.Workflow) { w.ID = "" }, "workflow id is required"},
		{"no steps", func(w *smartflow.Workflow) { w.Steps = nil }, "no steps"},
		{"negative version", func(w *smartflow.Workflow) { w.Version = -1 }, "version must not be negative"},
		{"duplicate ids", func(w *smartflow.Workflow) { w.Steps[1].ID = "a" }, `duplicate step id "a"`},
		{"empty step id", func(w *smartflow.Workflow) { w.Steps[0].ID = "" }, "step 0 has no id"},
		{"unknown type", func(w *smartflow.Workflow) { w.Steps[0].Type = "translate" }, `unknown step type "translate"`},
		{"unknown operator", func(w *smartflow.Workflow) {
			w.Steps[0].Conditions = []smartflow.Condition{{Field: "x", Operator: "matches"}}
		}, `unknown condition operator "matches"`},
		{"empty condition field", func(w *smartflow.Workflow) {
			w.Steps[0].Conditions = []smartflow.Condition{{Operator: smartflow.OperatorExists}}
		}, "condition field is required"},
		{"negative retries", func(w *smartflow.Workflow) {
			w.Steps[0].Retry = &smartflow.RetryPolicy{MaxRetries: -1}
		}, "maxRetries must not be negative"},
		{"negative multiplier", func(w *smartflow.Workflow) {
			w.Steps[0].Retry = &smartflow.RetryPolicy{BackoffMultiplier: -2}
		}, "backoffMultiplier must not be negative"},
		{"bad rule", func(w *smartflow.Workflow) { w.Steps[1].Config["rules"] = []any{"len(entities) >"} }, "invalid rule"},
		{"bad jq", func(w *smartflow.Workflow) {
			w.Steps[0].Config = map[string]any{"jq": "{{"}
		}, "invalid jq expression"},
		{"unknown trigger", func(w *smartflow.Workflow) {
			w.Triggers = append(w.Triggers, smartflow.Trigger{Type: "email"})
		}, `unknown trigger type "email"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := valid()
			tt.mutate(wf)

			err := Validate(wf)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var we *smartflow.WorkflowError
			require.True(t, errors.As(err, &we))
			assert.Equal(t, smartflow.ErrCodeValidation, we.Code)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	wf := &smartflow.Workflow{
		ID: "wf",
		Steps: []smartflow.WorkflowStep{
			{ID: "a", Type: "nope"},
			{ID: "a", Type: smartflow.StepTypeClassify, Retry: &smartflow.RetryPolicy{MaxRetries: -3}},
		},
	}

	err := Validate(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown step type")
	assert.Contains(t, err.Error(), "duplicate step id")
	assert.Contains(t, err.Error(), "maxRetries must not be negative")
}

func TestValidate_Nil(t *testing.T) {
	assert.Error(t, Validate(nil))
}
