package builder_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/builder"
	"github.com/sicko7947/smartflow/engine"
	"github.com/sicko7947/smartflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltWorkflowRuns(t *testing.T) {
	wf := builder.NewWorkflow("invoice-intake", "Invoice intake").
		WithUserID("user-1").
		WithTrigger(smartflow.TriggerManual, nil).
		Then("classify", smartflow.StepTypeClassify, builder.WithConfigValue("defaultLabel", "invoice")).
		Parallel(
			builder.NewStep("title", smartflow.StepTypeTransform,
				builder.WithJQ(`{title: .meta.title}`),
				builder.WithOutputs("title"),
			),
			builder.NewStep("pages", smartflow.StepTypeTransform,
				builder.WithJQ(`{pageCount: .meta.pages}`),
				builder.WithOutputs("pageCount"),
			),
		).
		Then("check", smartflow.StepTypeValidate,
			builder.WithRules(`classification == "invoice"`, "pageCount > 0"),
			builder.WithCondition("meta.pages", smartflow.OperatorExists, nil),
		).
		MustBuild()

	eng := engine.NewEngine(store.NewMemoryStore(), engine.WithLogger(zerolog.Nop()))
	exec, err := eng.ExecuteWorkflow(context.Background(), wf,
		map[string]any{"meta": map[string]any{"title": "ACME Q3", "pages": 4}}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, smartflow.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, "invoice", exec.Results["classification"])
	assert.Equal(t, "ACME Q3", exec.Results["title"])
	assert.Equal(t, float64(4), exec.Results["pageCount"])
	assert.Equal(t, true, exec.Results["validated"])
	assert.Len(t, exec.StepResults, 4)
}
