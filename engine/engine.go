package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
	"github.com/sicko7947/smartflow/optimizer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/sicko7947/smartflow/engine"

// Learner remembers executions and mines them for configuration and proposals
type Learner interface {
	Remember(exec *smartflow.WorkflowExecution)
	Persist(ctx context.Context, exec *smartflow.WorkflowExecution)
	GetOptimalConfig(workflowID string, version int, stepID string) smartflow.OptimalConfig
	OptimizeWorkflow(wf *smartflow.Workflow) []smartflow.Optimization
}

// Applier mutates a workflow definition according to proposals
type Applier interface {
	ApplyOptimizations(ctx context.Context, wf *smartflow.Workflow, proposals []smartflow.Optimization) error
}

// Engine orchestrates workflow execution
type Engine struct {
	store    smartflow.ExecutionStore
	learner  Learner
	applier  Applier
	handlers map[smartflow.StepType]StepHandler
	cache    smartflow.ResultCache
	metrics  *Metrics
	tracer   trace.Tracer
	logger   zerolog.Logger
	config   smartflow.EngineConfig

	// defMu guards workflow definitions between snapshotting and auto-apply
	defMu sync.RWMutex
}

// EngineOption configures the workflow engine
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the engine
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig sets a custom configuration for the engine
func WithConfig(config smartflow.EngineConfig) EngineOption {
	return func(e *Engine) {
		e.config = config.WithDefaults()
	}
}

// WithLearner replaces the default history-backed learner
func WithLearner(l Learner) EngineOption {
	return func(e *Engine) {
		e.learner = l
	}
}

// WithApplier replaces the default store-backed applier
func WithApplier(a Applier) EngineOption {
	return func(e *Engine) {
		e.applier = a
	}
}

// WithHandler registers or overrides the handler for a step type
func WithHandler(stepType smartflow.StepType, h StepHandler) EngineOption {
	return func(e *Engine) {
		e.handlers[stepType] = h
	}
}

// WithCollaborators wires the remote functions used by extract, summarize
// and custom steps
func WithCollaborators(c Collaborators) EngineOption {
	return func(e *Engine) {
		if c.Extraction != nil {
			e.handlers[smartflow.StepTypeExtract] = CollaboratorHandler(smartflow.StepTypeExtract, c.Extraction)
		}
		if c.Summarization != nil {
			e.handlers[smartflow.StepTypeSummarize] = CollaboratorHandler(smartflow.StepTypeSummarize, c.Summarization)
		}
		if c.Custom != nil {
			e.handlers[smartflow.StepTypeCustom] = CollaboratorHandler(smartflow.StepTypeCustom, c.Custom)
		}
	}
}

// WithResultCache enables output caching for steps configured with cache: true
func WithResultCache(c smartflow.ResultCache) EngineOption {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithMetrics records prometheus metrics for executions and steps
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracerProvider sets the provider used for execution and step spans
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// NewEngine creates a new workflow engine with optional configuration
// If no logger is provided, a default stdout logger with Info level is used
// If no learner or applier is provided, history-backed defaults over store are used
func NewEngine(store smartflow.ExecutionStore, opts ...EngineOption) *Engine {
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	eng := &Engine{
		store:    store,
		handlers: DefaultHandlers(Collaborators{}),
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
		logger:   defaultLogger,
		config:   smartflow.DefaultEngineConfig,
	}

	for _, opt := range opts {
		opt(eng)
	}

	if eng.learner == nil {
		eng.learner = optimizer.NewLearner(store, eng.logger, eng.config)
	}
	if eng.applier == nil {
		eng.applier = optimizer.NewApplier(store, eng.logger)
	}

	return eng
}

// Learner returns the engine's learner
func (e *Engine) Learner() Learner {
	return e.learner
}

// Snapshot returns a deep copy of wf taken under the definition lock
func (e *Engine) Snapshot(wf *smartflow.Workflow) *smartflow.Workflow {
	e.defMu.RLock()
	defer e.defMu.RUnlock()
	return wf.Clone()
}

// ApplyOptimizations applies proposals to wf under the definition lock
func (e *Engine) ApplyOptimizations(ctx context.Context, wf *smartflow.Workflow, proposals []smartflow.Optimization) error {
	return e.UpdateDefinition(wf, func(wf *smartflow.Workflow) error {
		return e.applier.ApplyOptimizations(ctx, wf, proposals)
	})
}

// UpdateDefinition runs fn on wf under the definition lock, serialising it
// with snapshots and auto-applied optimizations of the same definition
func (e *Engine) UpdateDefinition(wf *smartflow.Workflow, fn func(*smartflow.Workflow) error) error {
	e.defMu.Lock()
	defer e.defMu.Unlock()
	return fn(wf)
}

// runState is the mutable state of one execution shared by its steps
type runState struct {
	exec   *smartflow.WorkflowExecution
	wf     *smartflow.Workflow
	logger zerolog.Logger

	mu    sync.Mutex
	usage usageTotals
}

func (r *runState) addResult(res smartflow.StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exec.StepResults = append(r.exec.StepResults, res)
}

func (r *runState) addUsage(raw any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage.add(raw)
}

// ExecuteWorkflow runs wf over input and returns the finished execution.
// A step failure ends the run as failed and is returned alongside the
// execution; cancelling ctx ends it as cancelled.
func (e *Engine) ExecuteWorkflow(
	ctx context.Context,
	wf *smartflow.Workflow,
	input map[string]any,
	userID string,
) (*smartflow.WorkflowExecution, error) {
	snapshot := e.Snapshot(wf)

	exec := &smartflow.WorkflowExecution{
		ID:              uuid.New().String(),
		WorkflowID:      snapshot.ID,
		WorkflowVersion: snapshot.Version,
		UserID:          userID,
		Status:          smartflow.ExecutionStatusRunning,
		StartTime:       time.Now(),
		StepResults:     make([]smartflow.StepResult, 0, len(snapshot.Steps)),
	}

	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", snapshot.ID),
		attribute.Int("workflow.version", snapshot.Version),
		attribute.String("execution.id", exec.ID),
	))
	defer span.End()

	run := &runState{
		exec:   exec,
		wf:     snapshot,
		logger: smartflow.ExecutionLogger(e.logger, exec.ID, snapshot.ID, userID),
	}
	smartflow.LogWorkflowStarted(run.logger, snapshot.Version)

	current := smartflow.CloneMap(input)
	if current == nil {
		current = map[string]any{}
	}

	var runErr error
	for _, group := range GroupSteps(snapshot.Steps) {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		if group.Parallel && len(group.Steps) > 1 {
			current, runErr = e.executeParallelGroup(ctx, run, group.Steps, current)
		} else {
			for i := range group.Steps {
				current, runErr = e.executeStepWithRetry(ctx, run, &group.Steps[i], current)
				if runErr != nil {
					break
				}
			}
		}
		if runErr != nil {
			break
		}
	}

	end := time.Now()
	exec.EndTime = &end
	exec.Metrics = run.usage.metrics(end.Sub(exec.StartTime).Milliseconds())

	switch {
	case runErr == nil:
		exec.Status = smartflow.ExecutionStatusCompleted
		exec.Results = current
		smartflow.LogWorkflowCompleted(run.logger, end.Sub(exec.StartTime))
	case smartflow.IsCancelled(ctx.Err()):
		exec.Status = smartflow.ExecutionStatusCancelled
		smartflow.LogWorkflowCancelled(run.logger)
	default:
		exec.Status = smartflow.ExecutionStatusFailed
		smartflow.LogWorkflowFailed(run.logger, runErr)
	}

	e.finish(ctx, wf, run)

	e.metrics.observeExecution(exec)
	span.SetAttributes(attribute.String("execution.status", exec.Status.String()))
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}

	return exec, runErr
}

// finish remembers the execution, attaches and applies proposals, then
// persists it once
func (e *Engine) finish(ctx context.Context, wf *smartflow.Workflow, run *runState) {
	exec := run.exec
	e.learner.Remember(exec)

	if exec.Status == smartflow.ExecutionStatusCompleted && run.wf.Optimization.Enabled {
		proposals := e.learner.OptimizeWorkflow(run.wf)
		exec.Optimizations = proposals

		var auto []smartflow.Optimization
		for _, p := range proposals {
			smartflow.LogOptimizationProposed(run.logger, p)
			e.metrics.observeProposal(p)
			if p.Applied {
				auto = append(auto, p)
			}
		}

		if run.wf.Optimization.AutoApply && len(auto) > 0 {
			if err := e.ApplyOptimizations(context.WithoutCancel(ctx), wf, auto); err != nil {
				smartflow.LogPersistenceError(run.logger, run.wf.ID, "apply_optimizations", err)
			}
		}
	}

	e.learner.Persist(context.WithoutCancel(ctx), exec)
}

// executeParallelGroup runs steps concurrently over the same input snapshot
// and merges their outputs in completion order. Siblings of a failed step
// are allowed to finish.
func (e *Engine) executeParallelGroup(
	ctx context.Context,
	run *runState,
	steps []smartflow.WorkflowStep,
	current map[string]any,
) (map[string]any, error) {
	merged := smartflow.CloneMap(current)
	var mergeMu sync.Mutex

	var g errgroup.Group
	for i := range steps {
		step := &steps[i]
		g.Go(func() error {
			out, err := e.executeStepWithRetry(ctx, run, step, smartflow.CloneMap(current))
			if err != nil {
				return err
			}
			mergeMu.Lock()
			for k, v := range out {
				merged[k] = v
			}
			mergeMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return current, fmt.Errorf("parallel group failed: %w", err)
	}
	return merged, nil
}
