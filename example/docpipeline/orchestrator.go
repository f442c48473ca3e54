package docpipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/engine"
)

// Orchestrator handles the execution of document pipeline runs
type Orchestrator struct {
	workflow *smartflow.Workflow
	engine   *engine.Engine
	logger   zerolog.Logger
}

// NewOrchestrator creates a new document pipeline orchestrator
func NewOrchestrator(
	store smartflow.ExecutionStore,
	logger zerolog.Logger,
	config smartflow.EngineConfig,
	opts ...engine.EngineOption,
) (*Orchestrator, error) {
	wf, err := NewDocumentWorkflow()
	if err != nil {
		return nil, fmt.Errorf("failed to create document workflow: %w", err)
	}

	base := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithConfig(config),
		engine.WithCollaborators(NewCollaborators()),
	}
	eng := engine.NewEngine(store, append(base, opts...)...)

	if err := store.UpsertWorkflow(context.Background(), wf); err != nil {
		return nil, fmt.Errorf("failed to store document workflow: %w", err)
	}

	return &Orchestrator{
		workflow: wf,
		engine:   eng,
		logger:   logger,
	}, nil
}

// Process runs the pipeline for one document
func (o *Orchestrator) Process(ctx context.Context, input DocumentInput) (*DocumentResult, *smartflow.WorkflowExecution, error) {
	o.logger.Info().
		Str("document_id", input.DocumentID).
		Str("lang", input.Lang).
		Msg("Processing document")

	payload, err := toMap(input)
	if err != nil {
		return nil, nil, err
	}

	exec, err := o.engine.ExecuteWorkflow(ctx, o.workflow, payload, "")
	if err != nil {
		return nil, exec, fmt.Errorf("document %s: %w", input.DocumentID, err)
	}

	var result DocumentResult
	raw, err := json.Marshal(exec.Results)
	if err != nil {
		return nil, exec, fmt.Errorf("failed to encode results: %w", err)
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, exec, fmt.Errorf("failed to decode results: %w", err)
	}

	return &result, exec, nil
}

// Definition returns a snapshot of the current, possibly optimized, definition
func (o *Orchestrator) Definition() *smartflow.Workflow {
	return o.engine.Snapshot(o.workflow)
}

func toMap(input DocumentInput) (map[string]any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	return out, nil
}
