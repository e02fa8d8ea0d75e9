// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the transformation pipeline.
//
// It exposes a narrow Backend interface (counters and histograms) behind a
// global, pluggable backend that defaults to a no-op implementation, so
// metric calls are always safe even when nothing is configured. Concrete
// systems live in subpackages; the rest of the codebase depends only on this
// package.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordPhase measures latency plus success/failure for one pipeline phase.
func RecordPhase(job, phase string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"phase":  phase,
		"status": status,
	}

	backend.IncCounter("tf_phase_total", 1, lbls)
	backend.ObserveHistogram("tf_phase_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given job and kind.
//
// Typical kinds mirror the run summary fields:
//   - "fit"
//   - "applied"
//   - "na_values"
//   - "inserted"
//   - "row_errors"
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("tf_rows_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}
