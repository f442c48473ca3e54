package smartflow

import "time"

// EngineConfig holds engine-level configuration
type EngineConfig struct {
	// HistoryLimit caps the in-memory execution window per workflow and the
	// number of executions loaded at startup
	HistoryLimit int

	// MinExecutionsForConfig gates GetOptimalConfig
	MinExecutionsForConfig int

	// MinExecutionsForOptimization gates OptimizeWorkflow
	MinExecutionsForOptimization int

	// RetryBaseDelay is the wait before the first retry; later waits grow by
	// the step's backoff multiplier
	RetryBaseDelay time.Duration
}

// DefaultEngineConfig provides engine defaults
var DefaultEngineConfig = EngineConfig{
	HistoryLimit:                 100,
	MinExecutionsForConfig:       10,
	MinExecutionsForOptimization: 20,
	RetryBaseDelay:               time.Second,
}

// WithDefaults fills zero fields from DefaultEngineConfig
func (c EngineConfig) WithDefaults() EngineConfig {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultEngineConfig.HistoryLimit
	}
	if c.MinExecutionsForConfig <= 0 {
		c.MinExecutionsForConfig = DefaultEngineConfig.MinExecutionsForConfig
	}
	if c.MinExecutionsForOptimization <= 0 {
		c.MinExecutionsForOptimization = DefaultEngineConfig.MinExecutionsForOptimization
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultEngineConfig.RetryBaseDelay
	}
	return c
}

// Thresholds used by the learner
const (
	// ParallelizeDurationThresholdMs is the mean duration above which parallelization is proposed
	ParallelizeDurationThresholdMs = 5000

	// CheaperModelAccuracyThreshold and CheaperModelCostThreshold gate use_cheaper_model
	CheaperModelAccuracyThreshold = 0.95
	CheaperModelCostThreshold     = 0.001

	// DuplicateResultThreshold is the duplicate fraction above which caching is proposed
	DuplicateResultThreshold = 0.3

	// MaxTokensReductionFactor scales maxTokens when reduce_max_tokens is applied
	MaxTokensReductionFactor = 0.7
)

// Well-known step config keys
const (
	ConfigKeyCache     = "cache"
	ConfigKeyMaxTokens = "maxTokens"
	ConfigKeyModelTier = "modelTier"
	ConfigKeyOutputs   = "outputs"
	ConfigKeyInputs    = "inputs"
	ConfigKeyJQ        = "jq"
	ConfigKeyRules     = "rules"
	ConfigKeyLabel     = "defaultLabel"
)

// UsageKey is the handler output key carrying usage measurements; it is
// stripped from the payload and folded into the execution metrics
const UsageKey = "_usage"
