package metrics

import (
	"context"
	"sort"

	"github.com/jackzampolin/llmshape/internal/llmcall"
)

// CallLister is the subset of llmcall.Store that Query reads from.
type CallLister interface {
	List(ctx context.Context, filter llmcall.QueryFilter) ([]llmcall.Call, error)
}

// Query computes statistics over recorded call history.
type Query struct {
	store CallLister
}

// NewQuery creates a new stats query.
func NewQuery(store CallLister) *Query {
	return &Query{store: store}
}

// DetailedStats summarizes a set of calls including latency percentiles and token totals.
type DetailedStats struct {
	// Basic counts
	Count        int            `json:"count" yaml:"count"`
	SuccessCount int            `json:"success_count" yaml:"success_count"`
	FailureCount int            `json:"failure_count" yaml:"failure_count"`
	SuccessRate  float64        `json:"success_rate" yaml:"success_rate"`
	FailureKinds map[string]int `json:"failure_kinds,omitempty" yaml:"failure_kinds,omitempty"`

	// Latency percentiles (seconds)
	LatencyP50 float64 `json:"latency_p50" yaml:"latency_p50"`
	LatencyP95 float64 `json:"latency_p95" yaml:"latency_p95"`
	LatencyP99 float64 `json:"latency_p99" yaml:"latency_p99"`
	LatencyAvg float64 `json:"latency_avg" yaml:"latency_avg"`
	LatencyMin float64 `json:"latency_min" yaml:"latency_min"`
	LatencyMax float64 `json:"latency_max" yaml:"latency_max"`

	// Token stats
	TotalInputTokens  int     `json:"total_input_tokens" yaml:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens" yaml:"total_output_tokens"`
	AvgInputTokens    float64 `json:"avg_input_tokens" yaml:"avg_input_tokens"`
	AvgOutputTokens   float64 `json:"avg_output_tokens" yaml:"avg_output_tokens"`
}

// GetDetailedStats returns statistics for calls matching the filter.
func (q *Query) GetDetailedStats(ctx context.Context, f llmcall.QueryFilter) (*DetailedStats, error) {
	f.Limit, f.Offset = 0, 0
	calls, err := q.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return Summarize(calls), nil
}

// StatsByBackend returns detailed stats grouped by backend.
func (q *Query) StatsByBackend(ctx context.Context, f llmcall.QueryFilter) (map[string]*DetailedStats, error) {
	return q.groupedStats(ctx, f, func(c llmcall.Call) string { return c.Backend })
}

// StatsByPromptKey returns detailed stats grouped by prompt key.
func (q *Query) StatsByPromptKey(ctx context.Context, f llmcall.QueryFilter) (map[string]*DetailedStats, error) {
	return q.groupedStats(ctx, f, func(c llmcall.Call) string { return c.PromptKey })
}

func (q *Query) groupedStats(ctx context.Context, f llmcall.QueryFilter, key func(llmcall.Call) string) (map[string]*DetailedStats, error) {
	f.Limit, f.Offset = 0, 0
	calls, err := q.store.List(ctx, f)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]llmcall.Call)
	for _, c := range calls {
		k := key(c)
		groups[k] = append(groups[k], c)
	}

	result := make(map[string]*DetailedStats, len(groups))
	for k, group := range groups {
		result[k] = Summarize(group)
	}
	return result, nil
}

// Summarize computes DetailedStats over calls.
func Summarize(calls []llmcall.Call) *DetailedStats {
	stats := &DetailedStats{Count: len(calls)}
	if len(calls) == 0 {
		return stats
	}

	latencies := make([]float64, 0, len(calls))
	for _, c := range calls {
		if c.Success {
			stats.SuccessCount++
		} else {
			stats.FailureCount++
			if c.FailureKind != "" {
				if stats.FailureKinds == nil {
					stats.FailureKinds = make(map[string]int)
				}
				stats.FailureKinds[c.FailureKind]++
			}
		}

		stats.TotalInputTokens += c.InputTokens
		stats.TotalOutputTokens += c.OutputTokens

		latencies = append(latencies, float64(c.LatencyMs)/1000.0)
	}

	count := float64(stats.Count)
	stats.SuccessRate = float64(stats.SuccessCount) / count
	stats.AvgInputTokens = float64(stats.TotalInputTokens) / count
	stats.AvgOutputTokens = float64(stats.TotalOutputTokens) / count

	sort.Float64s(latencies)
	stats.LatencyMin = latencies[0]
	stats.LatencyMax = latencies[len(latencies)-1]

	var sum float64
	for _, l := range latencies {
		sum += l
	}
	stats.LatencyAvg = sum / float64(len(latencies))

	stats.LatencyP50 = percentile(latencies, 50)
	stats.LatencyP95 = percentile(latencies, 95)
	stats.LatencyP99 = percentile(latencies, 99)

	return stats
}

// percentile calculates the p-th percentile from a sorted slice of values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	n := float64(len(sorted))
	idx := (p / 100.0) * (n - 1)

	// Interpolate between floor and ceil indices
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}

	weight := idx - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
