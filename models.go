package smartflow

import (
	"time"
)

// ExecutionStatus represents the current state of a workflow execution
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal returns true if the status is a final state
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// String returns the string representation
func (s ExecutionStatus) String() string {
	return string(s)
}

// StepStatus represents the outcome of a single step
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// String returns the string representation
func (s StepStatus) String() string {
	return string(s)
}

// WorkflowExecution represents a single workflow run
type WorkflowExecution struct {
	// Identity
	ID              string `json:"id" dynamodbav:"id"`
	WorkflowID      string `json:"workflowId" dynamodbav:"workflow_id"`
	WorkflowVersion int    `json:"workflowVersion" dynamodbav:"workflow_version"`
	UserID          string `json:"userId,omitempty" dynamodbav:"user_id,omitempty"`

	// Status
	Status ExecutionStatus `json:"status" dynamodbav:"status"`

	// Timing
	StartTime time.Time  `json:"startTime" dynamodbav:"start_time"`
	EndTime   *time.Time `json:"endTime,omitempty" dynamodbav:"end_time,omitempty"`

	Metrics ExecutionMetrics `json:"metrics" dynamodbav:"metrics"`

	// Final payload
	Results map[string]any `json:"results,omitempty" dynamodbav:"results,omitempty"`

	// Audit trail, in the order steps finished
	StepResults []StepResult `json:"stepResults" dynamodbav:"step_results"`

	Optimizations []Optimization `json:"optimizations,omitempty" dynamodbav:"optimizations,omitempty"`
}

// ExecutionMetrics aggregates measurements for a run
type ExecutionMetrics struct {
	DurationMs int64    `json:"duration" dynamodbav:"duration"`
	Accuracy   *float64 `json:"accuracy,omitempty" dynamodbav:"accuracy,omitempty"`
	Cost       *float64 `json:"cost,omitempty" dynamodbav:"cost,omitempty"`
	Quality    *float64 `json:"quality,omitempty" dynamodbav:"quality,omitempty"`
	TokensUsed *int64   `json:"tokensUsed,omitempty" dynamodbav:"tokens_used,omitempty"`
}

// Score returns accuracy, falling back to quality, else 0
func (m ExecutionMetrics) Score() float64 {
	if m.Accuracy != nil {
		return *m.Accuracy
	}
	if m.Quality != nil {
		return *m.Quality
	}
	return 0
}

// StepResult records the outcome of one step within an execution
type StepResult struct {
	StepID     string     `json:"stepId" dynamodbav:"step_id"`
	Status     StepStatus `json:"status" dynamodbav:"status"`
	DurationMs int64      `json:"duration" dynamodbav:"duration"`
	Error      string     `json:"error,omitempty" dynamodbav:"error,omitempty"`
	Attempts   int        `json:"attempts,omitempty" dynamodbav:"attempts,omitempty"`

	// Effective configuration the step ran with (static merged with learned)
	Config map[string]any `json:"config,omitempty" dynamodbav:"config,omitempty"`
}

// OptimizationType tags a proposal
type OptimizationType string

const (
	OptimizationParallelize     OptimizationType = "parallelize"
	OptimizationUseCheaperModel OptimizationType = "use_cheaper_model"
	OptimizationEnableCaching   OptimizationType = "enable_caching"
	OptimizationReduceMaxTokens OptimizationType = "reduce_max_tokens"
)

// String returns the string representation
func (t OptimizationType) String() string {
	return string(t)
}

// Optimization is a proposed (and possibly auto-applied) workflow change.
// Impact maps a metric name to an estimated percentage change.
type Optimization struct {
	Type    OptimizationType   `json:"type" dynamodbav:"type"`
	Applied bool               `json:"applied" dynamodbav:"applied"`
	Impact  map[string]float64 `json:"impact" dynamodbav:"impact"`
}

// OptimalConfig is the learned configuration for a (workflow, step) pair
type OptimalConfig struct {
	Config     map[string]any `json:"config"`
	Confidence float64        `json:"confidence"`
	BasedOn    int            `json:"basedOnExecutions"`
}
