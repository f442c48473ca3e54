package optimizer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
)

// EconomyModelTier is the modelTier set by use_cheaper_model
const EconomyModelTier = "economy"

// Applier mutates workflow definitions according to accepted proposals
// and upserts the new version
type Applier struct {
	store  smartflow.ExecutionStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewApplier creates an applier that persists through store
func NewApplier(store smartflow.ExecutionStore, logger zerolog.Logger) *Applier {
	return &Applier{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// ApplyOptimizations applies proposals to wf in place, bumps its version
// and upserts it. The caller owns any locking around wf.
func (a *Applier) ApplyOptimizations(ctx context.Context, wf *smartflow.Workflow, proposals []smartflow.Optimization) error {
	if len(proposals) == 0 {
		return nil
	}

	for _, p := range proposals {
		if !knownOptimization(p.Type) {
			return smartflow.NewWorkflowError(
				smartflow.ErrCodeValidation,
				fmt.Sprintf("unknown optimization type %q", p.Type),
			)
		}
	}

	types := make([]smartflow.OptimizationType, 0, len(proposals))
	for _, p := range proposals {
		switch p.Type {
		case smartflow.OptimizationParallelize:
			for _, run := range PlanParallelRuns(wf.Steps) {
				for _, i := range run {
					wf.Steps[i].Parallel = true
				}
			}

		case smartflow.OptimizationEnableCaching:
			for i := range wf.Steps {
				setConfig(&wf.Steps[i], smartflow.ConfigKeyCache, true)
			}

		case smartflow.OptimizationReduceMaxTokens:
			for i := range wf.Steps {
				step := &wf.Steps[i]
				if maxTokens, ok := smartflow.ConfigNumber(step.Config, smartflow.ConfigKeyMaxTokens); ok {
					setConfig(step, smartflow.ConfigKeyMaxTokens, int(math.Ceil(maxTokens*smartflow.MaxTokensReductionFactor)))
				}
			}

		case smartflow.OptimizationUseCheaperModel:
			for i := range wf.Steps {
				setConfig(&wf.Steps[i], smartflow.ConfigKeyModelTier, EconomyModelTier)
			}
		}
		types = append(types, p.Type)
	}

	wf.Version++
	wf.UpdatedAt = a.now()

	smartflow.LogOptimizationApplied(a.logger, wf.ID, types, wf.Version)

	if a.store == nil {
		return nil
	}
	if err := a.store.UpsertWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("failed to upsert optimized workflow %s: %w", wf.ID, err)
	}
	return nil
}

func setConfig(step *smartflow.WorkflowStep, key string, value any) {
	if step.Config == nil {
		step.Config = make(map[string]any)
	}
	step.Config[key] = value
}

func knownOptimization(t smartflow.OptimizationType) bool {
	switch t {
	case smartflow.OptimizationParallelize,
		smartflow.OptimizationEnableCaching,
		smartflow.OptimizationReduceMaxTokens,
		smartflow.OptimizationUseCheaperModel:
		return true
	}
	return false
}
