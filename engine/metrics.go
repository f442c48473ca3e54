package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sicko7947/smartflow"
)

const metricsNamespace = "smartflow"

// Metrics holds the prometheus collectors the engine updates. A nil
// *Metrics records nothing.
type Metrics struct {
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	StepsTotal        *prometheus.CounterVec
	StepRetriesTotal  *prometheus.CounterVec
	ProposalsTotal    *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "executions_total",
				Help:      "Total number of workflow executions by final status",
			},
			[]string{"workflow_id", "status"},
		),
		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of workflow executions in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"workflow_id", "status"},
		),
		StepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "steps_total",
				Help:      "Total number of step results by type and status",
			},
			[]string{"step_type", "status"},
		),
		StepRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "step_retries_total",
				Help:      "Total number of step retries by type",
			},
			[]string{"step_type"},
		),
		ProposalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "optimization_proposals_total",
				Help:      "Total number of optimization proposals by type",
			},
			[]string{"type"},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.StepsTotal,
		m.StepRetriesTotal,
		m.ProposalsTotal,
	)
	return m
}

func (m *Metrics) observeExecution(exec *smartflow.WorkflowExecution) {
	if m == nil {
		return
	}
	status := exec.Status.String()
	m.ExecutionsTotal.WithLabelValues(exec.WorkflowID, status).Inc()
	m.ExecutionDuration.WithLabelValues(exec.WorkflowID, status).Observe(float64(exec.Metrics.DurationMs) / 1000)
}

func (m *Metrics) observeStep(stepType smartflow.StepType, status smartflow.StepStatus) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(string(stepType), status.String()).Inc()
}

func (m *Metrics) observeRetry(stepType smartflow.StepType) {
	if m == nil {
		return
	}
	m.StepRetriesTotal.WithLabelValues(string(stepType)).Inc()
}

func (m *Metrics) observeProposal(opt smartflow.Optimization) {
	if m == nil {
		return
	}
	m.ProposalsTotal.WithLabelValues(opt.Type.String()).Inc()
}
