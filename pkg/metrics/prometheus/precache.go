// Package prometheus implements the engine metrics interfaces on top of
// prometheus/client_golang.
//
// Importing this package (typically blank-imported from the binary) wires
// the constructors into pkg/metrics. Collectors are only built when the
// shared registry has been initialised.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/framefeed/pkg/metrics"
	"github.com/marmos91/framefeed/pkg/precache"
)

func init() {
	metrics.RegisterPrecacheMetricsConstructor(newPrecacheMetrics)
	metrics.RegisterWriterMetricsConstructor(newWriterMetrics)
}

// precacheMetrics is the Prometheus implementation of precache.Metrics.
type precacheMetrics struct {
	getOperations *prometheus.CounterVec
	getDuration   *prometheus.HistogramVec
	getBytes      prometheus.Histogram
	cacheUsage    prometheus.Gauge
	flushes       prometheus.Counter
	fillBytes     prometheus.Counter
}

func newPrecacheMetrics() precache.Metrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	return &precacheMetrics{
		getOperations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "framefeed_precache_get_total",
				Help: "Total number of served packet requests by outcome",
			},
			[]string{"outcome"}, // "hit", "miss"
		),
		getDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "framefeed_precache_get_duration_milliseconds",
				Help: "Duration of packet requests in milliseconds",
				Buckets: []float64{
					0.05, // cache hits
					0.1,
					0.5,
					1,
					5,
					10,  // synchronous loads
					50,
					100,
					500,
				},
			},
			[]string{"outcome"},
		),
		getBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "framefeed_precache_packet_bytes",
				Help: "Distribution of served packet payload sizes",
				Buckets: []float64{
					4096,      // masks
					65536,     // small stills
					262144,
					1048576,   // SD frames
					4194304,
					8388608,   // HD frames
					33554432,  // 4K frames
				},
			},
		),
		cacheUsage: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "framefeed_precache_used_bytes",
				Help: "Bytes currently held by the precache ring",
			},
		),
		flushes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "framefeed_precache_flushes_total",
				Help: "Number of cache flushes caused by out-of-order requests",
			},
		),
		fillBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "framefeed_precache_fill_bytes_total",
				Help: "Bytes appended to the ring by prefill and fill passes",
			},
		),
	}
}

func (m *precacheMetrics) ObserveGet(hit bool, bytes int64, duration time.Duration) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.getOperations.WithLabelValues(outcome).Inc()
	m.getDuration.WithLabelValues(outcome).Observe(float64(duration.Microseconds()) / 1000.0)
	m.getBytes.Observe(float64(bytes))
}

func (m *precacheMetrics) RecordCacheUsage(bytes int64) {
	m.cacheUsage.Set(float64(bytes))
}

func (m *precacheMetrics) RecordFlush() {
	m.flushes.Inc()
}

func (m *precacheMetrics) RecordFill(bytes int64) {
	m.fillBytes.Add(float64(bytes))
}
