package docpipeline

import (
	"fmt"

	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/builder"
)

// WorkflowID identifies the document pipeline definition
const WorkflowID = "document_pipeline"

// NewDocumentWorkflow constructs the document pipeline: extract entities,
// summarize English documents only, derive stats and a label side by side,
// then validate the result
func NewDocumentWorkflow() (*smartflow.Workflow, error) {
	wf, err := builder.NewWorkflow(WorkflowID, "Document Pipeline").
		WithDescription("Extracts, summarizes and validates uploaded documents").
		WithTrigger(smartflow.TriggerManual, nil).
		WithTrigger(smartflow.TriggerUpload, map[string]any{"prefix": "incoming/"}).
		WithOptimization(smartflow.OptimizationPolicy{
			Enabled:      true,
			AutoApply:    true,
			TargetMetric: "cost",
		}).
		Then("extract", smartflow.StepTypeExtract,
			builder.WithName("Extract entities"),
			builder.WithMaxTokens(1000),
			builder.WithInputs("text"),
			builder.WithOutputs("entities"),
			builder.WithRetries(2, 2),
		).
		ThenIf(
			builder.NewStep("summarize", smartflow.StepTypeSummarize,
				builder.WithName("Summarize"),
				builder.WithMaxTokens(500),
				builder.WithInputs("text"),
				builder.WithOutputs("summary"),
			),
			smartflow.Condition{Field: "lang", Operator: smartflow.OperatorEquals, Value: "en"},
		).
		Parallel(
			builder.NewStep("stats", smartflow.StepTypeTransform,
				builder.WithJQ(`{wordCount: (.text | split(" ") | length)}`),
				builder.WithInputs("text"),
				builder.WithOutputs("wordCount"),
			),
			builder.NewStep("label", smartflow.StepTypeClassify,
				builder.WithConfigValue(smartflow.ConfigKeyLabel, "document"),
				builder.WithOutputs("classification"),
			),
		).
		Then("validate", smartflow.StepTypeValidate,
			builder.WithRules("len(entities) > 0", "wordCount > 0"),
			builder.WithInputs("entities", "wordCount"),
		).
		Build()

	if err != nil {
		return nil, fmt.Errorf("failed to build workflow: %w", err)
	}

	return wf, nil
}
