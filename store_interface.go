package smartflow

import "context"

// ExecutionStore defines the durable persistence the engine relies on.
// Executions are insert-only; workflows are upserted.
type ExecutionStore interface {
	// Executions
	InsertExecution(ctx context.Context, exec *WorkflowExecution) error
	ListRecentExecutions(ctx context.Context, limit int) ([]*WorkflowExecution, error)

	// Workflow definitions
	UpsertWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, workflowID string) (*Workflow, error)
}

// ResultCache stores step outputs for steps running with config.cache = true
type ResultCache interface {
	Get(ctx context.Context, key string) (map[string]any, bool, error)
	Set(ctx context.Context, key string, value map[string]any) error
}

// Collaborator is a remote function a step handler delegates to
// (extraction, summarization, custom execution)
type Collaborator interface {
	Invoke(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// CollaboratorFunc adapts a plain function to the Collaborator interface
type CollaboratorFunc func(ctx context.Context, payload map[string]any) (map[string]any, error)

// Invoke calls f
func (f CollaboratorFunc) Invoke(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return f(ctx, payload)
}
