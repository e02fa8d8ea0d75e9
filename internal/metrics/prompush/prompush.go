// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It adapts the generic metrics.Backend interface to Prometheus using
// client_golang CounterVec and SummaryVec collectors and pushes the
// collected registry to a Pushgateway instead of exposing a scrape endpoint.
// All Prometheus-specific dependencies live here so the rest of the project
// stays decoupled from the concrete metrics system.
package prompush

import (
	"fmt"

	"tfengine/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	phaseCounter  *prometheus.CounterVec // tf_phase_total
	phaseDuration *prometheus.SummaryVec // tf_phase_duration_seconds
	rowCounter    *prometheus.CounterVec // tf_rows_total
}

// NewBackend constructs a Pushgateway backend. jobName is the Pushgateway
// "job" grouping key; gatewayURL the base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "tfengine"
	}

	reg := prometheus.NewRegistry()

	phaseCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tf_phase_total",
			Help: "Total pipeline phase executions, partitioned by phase and status.",
		},
		[]string{"phase", "status"},
	)
	phaseDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "tf_phase_duration_seconds",
			Help:       "Duration of pipeline phases in seconds, partitioned by phase and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"phase", "status"},
	)
	rowCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tf_rows_total",
			Help: "Row-level counts per kind (fit, applied, na_values, inserted, row_errors).",
		},
		[]string{"kind"},
	)

	if err := reg.Register(phaseCounter); err != nil {
		return nil, fmt.Errorf("prompush: register phase counter: %w", err)
	}
	if err := reg.Register(phaseDuration); err != nil {
		return nil, fmt.Errorf("prompush: register phase summary: %w", err)
	}
	if err := reg.Register(rowCounter); err != nil {
		return nil, fmt.Errorf("prompush: register row counter: %w", err)
	}

	return &Backend{
		gatewayURL:    gatewayURL,
		jobName:       jobName,
		reg:           reg,
		phaseCounter:  phaseCounter,
		phaseDuration: phaseDuration,
		rowCounter:    rowCounter,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "tf_phase_total":
		b.phaseCounter.WithLabelValues(labels["phase"], labels["status"]).Add(delta)
	case "tf_rows_total":
		b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != "tf_phase_duration_seconds" {
		return
	}
	b.phaseDuration.WithLabelValues(labels["phase"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
