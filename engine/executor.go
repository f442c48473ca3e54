package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sicko7947/smartflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// stepOutcome is the result of one successful attempt
type stepOutcome struct {
	output  map[string]any
	config  map[string]any
	skipped bool
}

// executeStepWithRetry runs a step with up to 1 + MaxRetries attempts and
// records exactly one StepResult for it
func (e *Engine) executeStepWithRetry(
	ctx context.Context,
	run *runState,
	step *smartflow.WorkflowStep,
	input map[string]any,
) (map[string]any, error) {
	stepLogger := smartflow.StepLogger(run.logger, step)

	ctx, span := e.tracer.Start(ctx, "workflow.step."+step.ID, trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.type", string(step.Type)),
	))
	defer span.End()

	var (
		outcome    stepOutcome
		lastConfig map[string]any
		attempts   int
	)

	startTime := time.Now()
	operation := func() error {
		attempts++
		smartflow.LogStepStarted(stepLogger, attempts)

		out, err := e.executeStep(ctx, run, step, input, stepLogger)
		lastConfig = out.config
		if err != nil {
			if !smartflow.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		outcome = out
		return nil
	}
	notify := func(err error, delay time.Duration) {
		smartflow.LogStepRetrying(stepLogger, attempts, delay, err)
		e.metrics.observeRetry(step.Type)
	}

	err := backoff.RetryNotify(operation, newStepBackOff(ctx, step, e.config.RetryBaseDelay), notify)
	duration := time.Since(startTime).Milliseconds()
	span.SetAttributes(attribute.Int("step.attempts", attempts))

	if err != nil {
		stepErr := smartflow.NewStepError(step.ID, attempts, err)
		run.addResult(smartflow.StepResult{
			StepID:     step.ID,
			Status:     smartflow.StepStatusFailed,
			DurationMs: duration,
			Error:      err.Error(),
			Attempts:   attempts,
			Config:     lastConfig,
		})
		smartflow.LogStepFailed(stepLogger, err, attempts)
		e.metrics.observeStep(step.Type, smartflow.StepStatusFailed)

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return input, stepErr
	}

	if outcome.skipped {
		span.SetAttributes(attribute.Bool("step.skipped", true))
		return outcome.output, nil
	}

	run.addResult(smartflow.StepResult{
		StepID:     step.ID,
		Status:     smartflow.StepStatusCompleted,
		DurationMs: duration,
		Attempts:   attempts,
		Config:     lastConfig,
	})
	smartflow.LogStepCompleted(stepLogger, duration, attempts)
	e.metrics.observeStep(step.Type, smartflow.StepStatusCompleted)

	return outcome.output, nil
}

// executeStep performs a single attempt: condition check, config merge,
// cache lookup and handler dispatch
func (e *Engine) executeStep(
	ctx context.Context,
	run *runState,
	step *smartflow.WorkflowStep,
	input map[string]any,
	logger zerolog.Logger,
) (stepOutcome, error) {
	ok, err := smartflow.EvaluateConditions(step.Conditions, input)
	if err != nil {
		return stepOutcome{}, err
	}
	if !ok {
		run.addResult(smartflow.StepResult{
			StepID:     step.ID,
			Status:     smartflow.StepStatusSkipped,
			DurationMs: 0,
		})
		smartflow.LogStepSkipped(logger, "conditions not met")
		e.metrics.observeStep(step.Type, smartflow.StepStatusSkipped)
		return stepOutcome{output: input, skipped: true}, nil
	}

	config := smartflow.CloneMap(step.Config)
	if learned := e.learner.GetOptimalConfig(run.wf.ID, run.wf.Version, step.ID); learned.Confidence > 0 {
		config = smartflow.MergeMaps(config, learned.Config)
	}

	handler, found := e.handlers[step.Type]
	if !found {
		return stepOutcome{config: config}, fmt.Errorf("%w: %q", smartflow.ErrUnknownStepType, step.Type)
	}

	var cacheKey string
	if e.cache != nil && smartflow.ConfigBool(config, smartflow.ConfigKeyCache) {
		cacheKey, err = resultCacheKey(run.wf.ID, step.ID, run.exec.UserID, input, config)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to derive result cache key")
		} else if cached, hit, cacheErr := e.cache.Get(ctx, cacheKey); cacheErr != nil {
			logger.Warn().Err(cacheErr).Msg("Result cache lookup failed")
		} else if hit {
			logger.Debug().
				Str("event", smartflow.EventStepCacheHit).
				Msg("Step result served from cache")
			return stepOutcome{output: cached, config: config}, nil
		}
	}

	output, err := e.invokeHandler(ctx, handler, &StepRequest{
		Workflow: run.wf,
		Step:     step,
		Input:    input,
		Config:   config,
		UserID:   run.exec.UserID,
		Logger:   logger,
	})
	if err != nil {
		return stepOutcome{config: config}, err
	}
	if output == nil {
		output = input
	}

	if usage, reported := output[smartflow.UsageKey]; reported {
		output = smartflow.CloneMap(output)
		delete(output, smartflow.UsageKey)
		run.addUsage(usage)
	}

	if cacheKey != "" {
		if err := e.cache.Set(ctx, cacheKey, output); err != nil {
			logger.Warn().Err(err).Msg("Result cache write failed")
		}
	}

	return stepOutcome{output: output, config: config}, nil
}

// invokeHandler calls h and converts a panic into an error
func (e *Engine) invokeHandler(ctx context.Context, h StepHandler, req *StepRequest) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			req.Logger.Error().Interface("panic", r).Msg("Step panicked")
			out = nil
			err = smartflow.NewWorkflowErrorWithStep(
				smartflow.ErrCodePanic,
				fmt.Sprintf("step panicked: %v", r),
				req.Step.ID,
			)
		}
	}()
	return h(ctx, req)
}

// resultCacheKey is scoped to the user since collaborators see the user id
func resultCacheKey(workflowID, stepID, userID string, input, config map[string]any) (string, error) {
	data, err := smartflow.CanonicalJSON(map[string]any{
		"workflow": workflowID,
		"step":     stepID,
		"user":     userID,
		"input":    input,
		"config":   config,
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
