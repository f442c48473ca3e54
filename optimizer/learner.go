package optimizer

import (
	"context"
	"math"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
)

// Learner derives per-step configuration and workflow-level optimization
// proposals from execution history
type Learner struct {
	history *History
	config  smartflow.EngineConfig
	logger  zerolog.Logger

	cacheMu sync.RWMutex
	// workflow id -> learned configs for one definition version
	optimal map[string]*versionConfigs
}

type versionConfigs struct {
	version int
	steps   map[string]smartflow.OptimalConfig
}

// NewLearner creates a learner over a fresh history window backed by store
func NewLearner(store smartflow.ExecutionStore, logger zerolog.Logger, config smartflow.EngineConfig) *Learner {
	config = config.WithDefaults()
	return &Learner{
		history: NewHistory(store, logger, config.HistoryLimit),
		config:  config,
		logger:  logger,
		optimal: make(map[string]*versionConfigs),
	}
}

// History returns the learner's execution window
func (l *Learner) History() *History {
	return l.history
}

// Remember records exec in the window and drops the workflow's cached configs
func (l *Learner) Remember(exec *smartflow.WorkflowExecution) {
	l.history.Remember(exec)
	l.invalidate(exec.WorkflowID)
}

// Persist durably stores exec; failures are logged
func (l *Learner) Persist(ctx context.Context, exec *smartflow.WorkflowExecution) {
	l.history.Persist(ctx, exec)
}

// Load warms the window from the store and clears every cached config
func (l *Learner) Load(ctx context.Context) {
	l.history.Load(ctx)

	l.cacheMu.Lock()
	l.optimal = make(map[string]*versionConfigs)
	l.cacheMu.Unlock()
}

func (l *Learner) invalidate(workflowID string) {
	l.cacheMu.Lock()
	delete(l.optimal, workflowID)
	l.cacheMu.Unlock()
}

// GetOptimalConfig returns the configuration the step ran with in the best
// completed execution of the given workflow version, scored by accuracy
// (falling back to quality). Runs of older versions are ignored so edits and
// applied optimizations are never reverted by stale history. Confidence grows
// with the number of completed executions and is zero until enough history
// exists.
func (l *Learner) GetOptimalConfig(workflowID string, version int, stepID string) smartflow.OptimalConfig {
	l.cacheMu.RLock()
	entry := l.optimal[workflowID]
	var (
		cached smartflow.OptimalConfig
		ok     bool
	)
	if entry != nil && entry.version == version {
		cached, ok = entry.steps[stepID]
	}
	l.cacheMu.RUnlock()
	if ok {
		return cached
	}

	result := l.computeOptimalConfig(workflowID, version, stepID)

	l.cacheMu.Lock()
	entry = l.optimal[workflowID]
	if entry == nil || entry.version != version {
		entry = &versionConfigs{version: version, steps: make(map[string]smartflow.OptimalConfig)}
		l.optimal[workflowID] = entry
	}
	entry.steps[stepID] = result
	l.cacheMu.Unlock()

	return result
}

func (l *Learner) computeOptimalConfig(workflowID string, version int, stepID string) smartflow.OptimalConfig {
	executions := l.history.Executions(workflowID)
	if len(executions) < l.config.MinExecutionsForConfig {
		return smartflow.OptimalConfig{Config: map[string]any{}, BasedOn: len(executions)}
	}

	completed := make([]*smartflow.WorkflowExecution, 0, len(executions))
	for _, exec := range completedOnly(executions) {
		if exec.WorkflowVersion == version {
			completed = append(completed, exec)
		}
	}
	if len(completed) == 0 {
		return smartflow.OptimalConfig{Config: map[string]any{}, BasedOn: 0}
	}

	best := completed[0]
	for _, exec := range completed[1:] {
		// ties go to the most recent run
		if exec.Metrics.Score() >= best.Metrics.Score() {
			best = exec
		}
	}

	config := map[string]any{}
	for _, res := range best.StepResults {
		if res.StepID == stepID && res.Status == smartflow.StepStatusCompleted {
			config = smartflow.CloneMap(res.Config)
			if config == nil {
				config = map[string]any{}
			}
			break
		}
	}

	return smartflow.OptimalConfig{
		Config:     config,
		Confidence: math.Min(float64(len(completed))/100, 1),
		BasedOn:    len(completed),
	}
}

// OptimizeWorkflow analyses the workflow's history and returns every
// applicable proposal. Nothing is proposed until enough executions exist.
func (l *Learner) OptimizeWorkflow(wf *smartflow.Workflow) []smartflow.Optimization {
	executions := l.history.Executions(wf.ID)
	if len(executions) < l.config.MinExecutionsForOptimization {
		return nil
	}

	completed := completedOnly(executions)
	var durationSum, accuracySum, costSum float64
	for _, exec := range completed {
		durationSum += float64(exec.Metrics.DurationMs)
		accuracySum += deref(exec.Metrics.Accuracy)
		costSum += deref(exec.Metrics.Cost)
	}
	var tokensSum float64
	for _, exec := range executions {
		if exec.Metrics.TokensUsed != nil {
			tokensSum += float64(*exec.Metrics.TokensUsed)
		}
	}

	meanDuration := mean(durationSum, len(completed))
	meanAccuracy := mean(accuracySum, len(completed))
	meanCost := mean(costSum, len(completed))
	meanTokens := mean(tokensSum, len(executions))

	var proposals []smartflow.Optimization

	if meanDuration > smartflow.ParallelizeDurationThresholdMs && len(PlanParallelRuns(wf.Steps)) > 0 {
		proposals = append(proposals, smartflow.Optimization{
			Type:    smartflow.OptimizationParallelize,
			Applied: true,
			Impact:  map[string]float64{"duration": -35},
		})
	}

	if meanAccuracy > smartflow.CheaperModelAccuracyThreshold && meanCost > smartflow.CheaperModelCostThreshold {
		proposals = append(proposals, smartflow.Optimization{
			Type:    smartflow.OptimizationUseCheaperModel,
			Applied: false,
			Impact:  map[string]float64{"speed": 20, "cost": -60, "accuracy": -2},
		})
	}

	if dup := duplicateFraction(executions); dup > smartflow.DuplicateResultThreshold {
		proposals = append(proposals, smartflow.Optimization{
			Type:    smartflow.OptimizationEnableCaching,
			Applied: true,
			Impact:  map[string]float64{"duration": -dup * 100, "cost": -dup * 100},
		})
	}

	if meanTokens > 0 {
		proposals = append(proposals, smartflow.Optimization{
			Type:    smartflow.OptimizationReduceMaxTokens,
			Applied: true,
			Impact:  map[string]float64{"speed": 10, "cost": -30},
		})
	}

	return proposals
}

// duplicateFraction is the share of executions with results whose
// canonical JSON matches an earlier execution's results
func duplicateFraction(executions []*smartflow.WorkflowExecution) float64 {
	seen := make(map[string]struct{})
	total, duplicates := 0, 0
	for _, exec := range executions {
		if exec.Results == nil {
			continue
		}
		data, err := smartflow.CanonicalJSON(exec.Results)
		if err != nil {
			continue
		}
		total++
		key := string(data)
		if _, ok := seen[key]; ok {
			duplicates++
			continue
		}
		seen[key] = struct{}{}
	}
	if total == 0 {
		return 0
	}
	return float64(duplicates) / float64(total)
}

func completedOnly(executions []*smartflow.WorkflowExecution) []*smartflow.WorkflowExecution {
	out := make([]*smartflow.WorkflowExecution, 0, len(executions))
	for _, exec := range executions {
		if exec.Status == smartflow.ExecutionStatusCompleted {
			out = append(out, exec)
		}
	}
	return out
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
