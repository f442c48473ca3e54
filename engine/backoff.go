package engine

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sicko7947/smartflow"
)

// newStepBackOff returns the retry schedule for a step: at most MaxRetries
// retries, waiting base * multiplier^n before retry n+1, no jitter.
func newStepBackOff(ctx context.Context, step *smartflow.WorkflowStep, base time.Duration) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.Multiplier = step.BackoffMultiplier()
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(step.MaxRetries())), ctx)
}
