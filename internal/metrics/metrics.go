// Package metrics collects counters for a single database build and writes
// them in the Prometheus text exposition format.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clusterdb"

// Run holds the collectors for one build. Each Run has its own registry so
// runs never share state.
type Run struct {
	registry *prometheus.Registry

	FilesParsed    prometheus.Counter
	FilesFailed    prometheus.Counter
	BatchesLoaded  prometheus.Counter
	BatchesDropped prometheus.Counter
	GenesLoaded    prometheus.Counter
	BatchSeconds   prometheus.Histogram
}

// New registers a fresh set of collectors.
func New() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		FilesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_parsed_total",
			Help: "Genome files parsed successfully.",
		}),
		FilesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "files_failed_total",
			Help: "Genome files that could not be parsed.",
		}),
		BatchesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_loaded_total",
			Help: "Batches committed to the store.",
		}),
		BatchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_dropped_total",
			Help: "Batches rolled back because of duplicate keys.",
		}),
		GenesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "genes_loaded_total",
			Help: "Genes inserted into the store.",
		}),
		BatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "batch_duration_seconds",
			Help:    "Time to parse and load one batch.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	r.registry.MustRegister(
		r.FilesParsed, r.FilesFailed,
		r.BatchesLoaded, r.BatchesDropped,
		r.GenesLoaded, r.BatchSeconds,
	)
	return r
}

// Registry returns the registry holding the run's collectors.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current values to path, replacing it atomically.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
