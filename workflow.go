package smartflow

import (
	"time"
)

// StepType selects the handler a step is dispatched to
type StepType string

const (
	StepTypeExtract   StepType = "extract"
	StepTypeClassify  StepType = "classify"
	StepTypeSummarize StepType = "summarize"
	StepTypeTransform StepType = "transform"
	StepTypeValidate  StepType = "validate"
	StepTypeCustom    StepType = "custom"
)

// StepTypes lists every known step type
var StepTypes = []StepType{
	StepTypeExtract,
	StepTypeClassify,
	StepTypeSummarize,
	StepTypeTransform,
	StepTypeValidate,
	StepTypeCustom,
}

// Valid reports whether t is one of the known step types
func (t StepType) Valid() bool {
	for _, known := range StepTypes {
		if t == known {
			return true
		}
	}
	return false
}

// String returns the string representation
func (t StepType) String() string {
	return string(t)
}

// TriggerType identifies what may start a workflow
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerUpload   TriggerType = "upload"
	TriggerSchedule TriggerType = "schedule"
	TriggerWebhook  TriggerType = "webhook"
)

// Trigger is an opaque trigger descriptor
type Trigger struct {
	Type   TriggerType    `json:"type" yaml:"type" dynamodbav:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty" dynamodbav:"config,omitempty"`
}

// RetryPolicy controls per-step retries
type RetryPolicy struct {
	MaxRetries        int     `json:"maxRetries" yaml:"maxRetries" dynamodbav:"max_retries"`
	BackoffMultiplier float64 `json:"backoffMultiplier,omitempty" yaml:"backoffMultiplier,omitempty" dynamodbav:"backoff_multiplier,omitempty"`
}

// DefaultBackoffMultiplier applies when a retry policy leaves the multiplier unset
const DefaultBackoffMultiplier = 2.0

// OptimizationPolicy controls the self-optimization loop
type OptimizationPolicy struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" dynamodbav:"enabled"`
	MetricsToTrack []string `json:"metrics,omitempty" yaml:"metrics,omitempty" dynamodbav:"metrics,omitempty"`
	TargetMetric   string   `json:"targetMetric,omitempty" yaml:"targetMetric,omitempty" dynamodbav:"target_metric,omitempty"`
	AutoApply      bool     `json:"autoApply" yaml:"autoApply" dynamodbav:"auto_apply"`
}

// WorkflowStep is one node of a workflow definition
type WorkflowStep struct {
	ID         string         `json:"id" yaml:"id" dynamodbav:"id"`
	Name       string         `json:"name" yaml:"name" dynamodbav:"name"`
	Type       StepType       `json:"type" yaml:"type" dynamodbav:"type"`
	Config     map[string]any `json:"config,omitempty" yaml:"config,omitempty" dynamodbav:"config,omitempty"`
	Conditions []Condition    `json:"conditions,omitempty" yaml:"conditions,omitempty" dynamodbav:"conditions,omitempty"`

	// Parallel hints that the step may run alongside adjacent parallel steps
	Parallel bool         `json:"parallel" yaml:"parallel" dynamodbav:"parallel"`
	Retry    *RetryPolicy `json:"retryPolicy,omitempty" yaml:"retryPolicy,omitempty" dynamodbav:"retry_policy,omitempty"`
}

// MaxRetries returns the configured retry count, 0 when unset
func (s *WorkflowStep) MaxRetries() int {
	if s.Retry == nil || s.Retry.MaxRetries < 0 {
		return 0
	}
	return s.Retry.MaxRetries
}

// BackoffMultiplier returns the configured multiplier, DefaultBackoffMultiplier when unset
func (s *WorkflowStep) BackoffMultiplier() float64 {
	if s.Retry == nil || s.Retry.BackoffMultiplier <= 0 {
		return DefaultBackoffMultiplier
	}
	return s.Retry.BackoffMultiplier
}

// Workflow is the versioned, user-owned definition
type Workflow struct {
	ID           string             `json:"id" yaml:"id" dynamodbav:"id"`
	UserID       string             `json:"userId" yaml:"userId" dynamodbav:"user_id"`
	Name         string             `json:"name" yaml:"name" dynamodbav:"name"`
	Description  string             `json:"description,omitempty" yaml:"description,omitempty" dynamodbav:"description,omitempty"`
	Steps        []WorkflowStep     `json:"steps" yaml:"steps" dynamodbav:"steps"`
	Triggers     []Trigger          `json:"triggers,omitempty" yaml:"triggers,omitempty" dynamodbav:"triggers,omitempty"`
	Optimization OptimizationPolicy `json:"optimization" yaml:"optimization" dynamodbav:"optimization"`
	Version      int                `json:"version" yaml:"version" dynamodbav:"version"`
	CreatedAt    time.Time          `json:"createdAt" yaml:"createdAt,omitempty" dynamodbav:"created_at"`
	UpdatedAt    time.Time          `json:"updatedAt" yaml:"updatedAt,omitempty" dynamodbav:"updated_at"`
}

// HasTrigger reports whether the workflow declares a trigger of the given type
func (w *Workflow) HasTrigger(t TriggerType) bool {
	for _, trig := range w.Triggers {
		if trig.Type == t {
			return true
		}
	}
	return false
}

// Clone returns a copy whose steps and configs can be mutated independently
func (w *Workflow) Clone() *Workflow {
	c := *w
	c.Steps = make([]WorkflowStep, len(w.Steps))
	for i, s := range w.Steps {
		c.Steps[i] = s.Clone()
	}
	c.Triggers = append([]Trigger(nil), w.Triggers...)
	c.Optimization.MetricsToTrack = append([]string(nil), w.Optimization.MetricsToTrack...)
	return &c
}

// Clone returns a copy of the step with its own config map
func (s WorkflowStep) Clone() WorkflowStep {
	c := s
	c.Config = CloneMap(s.Config)
	c.Conditions = append([]Condition(nil), s.Conditions...)
	if s.Retry != nil {
		r := *s.Retry
		c.Retry = &r
	}
	return c
}
