package metrics

import (
	"github.com/marmos91/framefeed/pkg/precache"
	"github.com/marmos91/framefeed/pkg/writer"
)

// NewPrecacheMetrics creates a Prometheus-backed precache.Metrics instance.
//
// Returns nil when metrics are disabled (InitRegistry not called) or when
// the Prometheus implementation has not been linked in; engines treat a nil
// collector as "no metrics" at zero overhead.
func NewPrecacheMetrics() precache.Metrics {
	if !IsEnabled() || newPrecacheMetrics == nil {
		return nil
	}
	return newPrecacheMetrics()
}

// NewWriterMetrics creates a Prometheus-backed writer.Metrics instance.
//
// Returns nil when metrics are disabled or the implementation has not been
// linked in.
func NewWriterMetrics() writer.Metrics {
	if !IsEnabled() || newWriterMetrics == nil {
		return nil
	}
	return newWriterMetrics()
}

// Constructors registered by pkg/metrics/prometheus during package
// initialization. The indirection avoids an import cycle between the gate
// and the implementation.
var (
	newPrecacheMetrics func() precache.Metrics
	newWriterMetrics   func() writer.Metrics
)

// RegisterPrecacheMetricsConstructor registers the Prometheus precache
// metrics constructor.
func RegisterPrecacheMetricsConstructor(constructor func() precache.Metrics) {
	newPrecacheMetrics = constructor
}

// RegisterWriterMetricsConstructor registers the Prometheus writer metrics
// constructor.
func RegisterWriterMetricsConstructor(constructor func() writer.Metrics) {
	newWriterMetrics = constructor
}
