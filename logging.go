package smartflow

import (
	"time"

	"github.com/rs/zerolog"
)

// Log event names
const (
	// Workflow-level events
	EventWorkflowStarted   = "workflow_started"
	EventWorkflowCompleted = "workflow_completed"
	EventWorkflowFailed    = "workflow_failed"
	EventWorkflowCancelled = "workflow_cancelled"

	// Step-level events
	EventStepStarted   = "step_started"
	EventStepRetrying  = "step_retrying"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
	EventStepSkipped   = "step_skipped"
	EventStepCacheHit  = "step_cache_hit"

	// Learning events
	EventOptimizationProposed = "optimization_proposed"
	EventOptimizationApplied  = "optimization_applied"

	// Persistence events
	EventPersistenceError = "persistence_error"
	EventHistoryLoaded    = "history_loaded"
)

// The helpers below expect a logger from ExecutionLogger or StepLogger and
// only add fields the context does not already carry.

// LogWorkflowStarted logs when a workflow starts execution
func LogWorkflowStarted(logger zerolog.Logger, version int) {
	logger.Info().
		Str("event", EventWorkflowStarted).
		Int("workflow_version", version).
		Msg("Workflow started")
}

// LogWorkflowCompleted logs successful workflow completion
func LogWorkflowCompleted(logger zerolog.Logger, duration time.Duration) {
	logger.Info().
		Str("event", EventWorkflowCompleted).
		Dur("duration", duration).
		Msg("Workflow completed")
}

// LogWorkflowFailed logs workflow failure
func LogWorkflowFailed(logger zerolog.Logger, err error) {
	logger.Error().
		Str("event", EventWorkflowFailed).
		Err(err).
		Msg("Workflow failed")
}

// LogWorkflowCancelled logs workflow cancellation
func LogWorkflowCancelled(logger zerolog.Logger) {
	logger.Warn().
		Str("event", EventWorkflowCancelled).
		Msg("Workflow cancelled")
}

// LogStepStarted logs when a step attempt starts
func LogStepStarted(logger zerolog.Logger, attempt int) {
	logger.Debug().
		Str("event", EventStepStarted).
		Int("attempt", attempt).
		Msg("Step started")
}

// LogStepRetrying logs when a step is being retried
func LogStepRetrying(logger zerolog.Logger, attempt int, delay time.Duration, err error) {
	logger.Warn().
		Str("event", EventStepRetrying).
		Int("attempt", attempt).
		Dur("delay", delay).
		Err(err).
		Msg("Step retrying")
}

// LogStepCompleted logs successful step completion
func LogStepCompleted(logger zerolog.Logger, durationMs int64, attempts int) {
	logger.Info().
		Str("event", EventStepCompleted).
		Int64("duration_ms", durationMs).
		Int("attempts", attempts).
		Msg("Step completed")
}

// LogStepFailed logs step failure
func LogStepFailed(logger zerolog.Logger, err error, attempts int) {
	logger.Error().
		Str("event", EventStepFailed).
		Err(err).
		Int("attempts", attempts).
		Msg("Step failed")
}

// LogStepSkipped logs when a conditional step is skipped
func LogStepSkipped(logger zerolog.Logger, reason string) {
	logger.Info().
		Str("event", EventStepSkipped).
		Str("reason", reason).
		Msg("Step skipped")
}

// LogOptimizationProposed logs a proposal produced by the learner
func LogOptimizationProposed(logger zerolog.Logger, opt Optimization) {
	logger.Info().
		Str("event", EventOptimizationProposed).
		Str("type", string(opt.Type)).
		Bool("auto_apply", opt.Applied).
		Msg("Optimization proposed")
}

// LogOptimizationApplied logs a workflow mutation by the applier
func LogOptimizationApplied(logger zerolog.Logger, workflowID string, types []OptimizationType, version int) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	logger.Info().
		Str("event", EventOptimizationApplied).
		Str("workflow_id", workflowID).
		Strs("types", names).
		Int("version", version).
		Msg("Optimizations applied")
}

// LogPersistenceError logs errors during persistence operations
func LogPersistenceError(logger zerolog.Logger, id, operation string, err error) {
	logger.Error().
		Str("event", EventPersistenceError).
		Str("id", id).
		Str("operation", operation).
		Err(err).
		Msg("Persistence error")
}

// ExecutionLogger creates a logger enriched with execution context
func ExecutionLogger(baseLogger zerolog.Logger, executionID, workflowID, userID string) zerolog.Logger {
	return baseLogger.With().
		Str("execution_id", executionID).
		Str("workflow_id", workflowID).
		Str("user_id", userID).
		Logger()
}

// StepLogger creates a logger enriched with step context
func StepLogger(executionLogger zerolog.Logger, step *WorkflowStep) zerolog.Logger {
	return executionLogger.With().
		Str("step_id", step.ID).
		Str("step_type", string(step.Type)).
		Logger()
}
