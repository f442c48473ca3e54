package builder

import "github.com/sicko7947/smartflow"

// StepOption is a functional option for configuring steps
type StepOption func(*smartflow.WorkflowStep)

// NewStep creates a step of the given type
func NewStep(id string, stepType smartflow.StepType, opts ...StepOption) smartflow.WorkflowStep {
	step := smartflow.WorkflowStep{
		ID:   id,
		Name: id,
		Type: stepType,
	}
	for _, opt := range opts {
		opt(&step)
	}
	return step
}

// WithName sets the display name
func WithName(name string) StepOption {
	return func(s *smartflow.WorkflowStep) {
		s.Name = name
	}
}

// WithConfig merges config into the step config
func WithConfig(config map[string]any) StepOption {
	return func(s *smartflow.WorkflowStep) {
		s.Config = smartflow.MergeMaps(s.Config, config)
	}
}

// WithConfigValue sets a single config key
func WithConfigValue(key string, value any) StepOption {
	return WithConfig(map[string]any{key: value})
}

// WithMaxTokens sets config.maxTokens
func WithMaxTokens(n int) StepOption {
	return WithConfigValue(smartflow.ConfigKeyMaxTokens, n)
}

// WithCache enables result caching for the step
func WithCache() StepOption {
	return WithConfigValue(smartflow.ConfigKeyCache, true)
}

// WithInputs declares the payload fields the step reads
func WithInputs(fields ...string) StepOption {
	return WithConfigValue(smartflow.ConfigKeyInputs, fields)
}

// WithOutputs declares the payload fields the step writes
func WithOutputs(fields ...string) StepOption {
	return WithConfigValue(smartflow.ConfigKeyOutputs, fields)
}

// WithRules sets validation rules for validate steps
func WithRules(rules ...string) StepOption {
	return WithConfigValue(smartflow.ConfigKeyRules, rules)
}

// WithJQ sets the transform expression for transform steps
func WithJQ(query string) StepOption {
	return WithConfigValue(smartflow.ConfigKeyJQ, query)
}

// WithCondition adds a gating condition
func WithCondition(field string, op smartflow.ConditionOperator, value any) StepOption {
	return func(s *smartflow.WorkflowStep) {
		s.Conditions = append(s.Conditions, smartflow.Condition{Field: field, Operator: op, Value: value})
	}
}

// WithRetries sets the retry policy
func WithRetries(maxRetries int, backoffMultiplier float64) StepOption {
	return func(s *smartflow.WorkflowStep) {
		s.Retry = &smartflow.RetryPolicy{MaxRetries: maxRetries, BackoffMultiplier: backoffMultiplier}
	}
}
