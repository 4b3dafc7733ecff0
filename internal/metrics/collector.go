// Package metrics provides Prometheus instrumentation and history statistics
// for extractions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jackzampolin/llmshape/internal/extract"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector records extraction metrics. It implements extract.Observer.
type Collector struct {
	extractionsTotal   *prometheus.CounterVec
	extractionDuration *prometheus.HistogramVec
	failuresTotal      *prometheus.CounterVec
	tokensTotal        *prometheus.CounterVec
	registry           *prometheus.Registry
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	extractionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmshape_extractions_total",
			Help: "Total number of extractions by backend, mode and outcome",
		},
		[]string{"backend", "mode", "outcome"},
	)

	extractionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmshape_extraction_duration_seconds",
			Help:    "Wall time of one extraction by backend and mode",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"backend", "mode"},
	)

	failuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmshape_failures_total",
			Help: "Total number of failed extractions by backend and failure kind",
		},
		[]string{"backend", "kind"},
	)

	tokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmshape_tokens_total",
			Help: "Tokens reported by backends, by direction",
		},
		[]string{"backend", "direction"},
	)

	registry.MustRegister(extractionsTotal)
	registry.MustRegister(extractionDuration)
	registry.MustRegister(failuresTotal)
	registry.MustRegister(tokensTotal)

	return &Collector{
		extractionsTotal:   extractionsTotal,
		extractionDuration: extractionDuration,
		failuresTotal:      failuresTotal,
		tokensTotal:        tokensTotal,
		registry:           registry,
	}
}

// ObserveExtraction records one finished extraction.
func (c *Collector) ObserveExtraction(o extract.Outcome) {
	mode := string(o.Mode)

	outcome := OutcomeSuccess
	if o.Err != nil {
		outcome = OutcomeFailure
		kind := "unknown"
		if f, ok := extract.AsFailure(o.Err); ok {
			kind = string(f.Kind)
		}
		c.failuresTotal.WithLabelValues(o.Backend, kind).Inc()
	}
	c.extractionsTotal.WithLabelValues(o.Backend, mode, outcome).Inc()
	c.extractionDuration.WithLabelValues(o.Backend, mode).Observe(o.Duration.Seconds())

	if o.Raw != nil {
		if o.Raw.PromptTokens > 0 {
			c.tokensTotal.WithLabelValues(o.Backend, "input").Add(float64(o.Raw.PromptTokens))
		}
		if o.Raw.CompletionTokens > 0 {
			c.tokensTotal.WithLabelValues(o.Backend, "output").Add(float64(o.Raw.CompletionTokens))
		}
	}
}

// Registry returns the Prometheus registry for HTTP exposure.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

var _ extract.Observer = (*Collector)(nil)
