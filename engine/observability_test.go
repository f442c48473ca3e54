package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sicko7947/smartflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEngine_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	engine, _ := createTestEngine(t,
		WithTracerProvider(tp),
		WithCollaborators(documentCollaborators()),
	)

	exec, err := engine.ExecuteWorkflow(context.Background(), documentWorkflow(), map[string]any{"lang": "en"}, "user-1")
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 4)

	byName := make(map[string]sdktrace.ReadOnlySpan, len(spans))
	for _, s := range spans {
		byName[s.Name()] = s
	}

	root, ok := byName["workflow.execute"]
	require.True(t, ok)
	for _, id := range []string{"extract", "summarize", "validate"} {
		child, ok := byName["workflow.step."+id]
		require.True(t, ok, "missing span for step %s", id)
		assert.Equal(t, root.SpanContext().SpanID(), child.Parent().SpanID())
	}

	attrs := map[string]string{}
	for _, kv := range root.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "doc-pipeline", attrs["workflow.id"])
	assert.Equal(t, exec.ID, attrs["execution.id"])
	assert.Equal(t, "completed", attrs["execution.status"])
}

func TestEngine_SpanRecordsFailure(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	engine, _ := createTestEngine(t,
		WithTracerProvider(tp),
		WithHandler(smartflow.StepTypeCustom, func(context.Context, *StepRequest) (map[string]any, error) {
			return nil, errors.New("boom")
		}),
	)
	wf := &smartflow.Workflow{ID: "fails", Steps: []smartflow.WorkflowStep{{ID: "x", Type: smartflow.StepTypeCustom}}}

	_, err := engine.ExecuteWorkflow(context.Background(), wf, map[string]any{}, "")
	require.Error(t, err)

	for _, s := range recorder.Ended() {
		assert.Equal(t, codes.Error, s.Status().Code, s.Name())
	}
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	var calls atomic.Int32
	engine, _ := createTestEngine(t,
		WithMetrics(metrics),
		WithCollaborators(documentCollaborators()),
		WithHandler(smartflow.StepTypeCustom, flakyHandler(1, &calls)),
	)

	_, err := engine.ExecuteWorkflow(context.Background(), documentWorkflow(), map[string]any{"lang": "en"}, "")
	require.NoError(t, err)
	_, err = engine.ExecuteWorkflow(context.Background(), documentWorkflow(), map[string]any{"lang": "fr"}, "")
	require.NoError(t, err)
	_, err = engine.ExecuteWorkflow(context.Background(), retryWorkflow(2, 0), map[string]any{}, "")
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ExecutionsTotal.WithLabelValues("doc-pipeline", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ExecutionsTotal.WithLabelValues("retry_test", "completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StepsTotal.WithLabelValues("extract", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StepsTotal.WithLabelValues("summarize", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StepsTotal.WithLabelValues("summarize", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StepRetriesTotal.WithLabelValues("custom")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.ExecutionDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.observeExecution(&smartflow.WorkflowExecution{})
		m.observeStep(smartflow.StepTypeCustom, smartflow.StepStatusCompleted)
		m.observeRetry(smartflow.StepTypeCustom)
		m.observeProposal(smartflow.Optimization{Type: smartflow.OptimizationParallelize})
	})
}
