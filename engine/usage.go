package engine

import "github.com/sicko7947/smartflow"

// Keys of the usage report a handler may attach under smartflow.UsageKey
const (
	usageTokens   = "tokensUsed"
	usageCost     = "cost"
	usageAccuracy = "accuracy"
	usageQuality  = "quality"
)

// usageTotals aggregates usage reports across the steps of one execution.
// Tokens and cost are summed; accuracy and quality are averaged over the
// steps that reported them.
type usageTotals struct {
	tokens    int64
	hasTokens bool
	cost      float64
	hasCost   bool

	accuracySum, qualitySum float64
	accuracyN, qualityN     int
}

func (u *usageTotals) add(raw any) {
	report, ok := raw.(map[string]any)
	if !ok {
		return
	}
	if v, ok := smartflow.ConfigNumber(report, usageTokens); ok {
		u.tokens += int64(v)
		u.hasTokens = true
	}
	if v, ok := smartflow.ConfigNumber(report, usageCost); ok {
		u.cost += v
		u.hasCost = true
	}
	if v, ok := smartflow.ConfigNumber(report, usageAccuracy); ok {
		u.accuracySum += v
		u.accuracyN++
	}
	if v, ok := smartflow.ConfigNumber(report, usageQuality); ok {
		u.qualitySum += v
		u.qualityN++
	}
}

func (u *usageTotals) metrics(durationMs int64) smartflow.ExecutionMetrics {
	m := smartflow.ExecutionMetrics{DurationMs: max(durationMs, 0)}
	if u.hasTokens {
		m.TokensUsed = smartflow.ToPtr(u.tokens)
	}
	if u.hasCost {
		m.Cost = smartflow.ToPtr(u.cost)
	}
	if u.accuracyN > 0 {
		m.Accuracy = smartflow.ToPtr(u.accuracySum / float64(u.accuracyN))
	}
	if u.qualityN > 0 {
		m.Quality = smartflow.ToPtr(u.qualitySum / float64(u.qualityN))
	}
	return m
}
