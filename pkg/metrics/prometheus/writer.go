package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/framefeed/pkg/metrics"
	"github.com/marmos91/framefeed/pkg/writer"
)

// writerMetrics is the Prometheus implementation of writer.Metrics.
type writerMetrics struct {
	pushOperations *prometheus.CounterVec
	pushBytes      *prometheus.CounterVec
	sinkDuration   prometheus.Histogram
	sinkBytes      prometheus.Histogram
	queuedBytes    prometheus.Gauge
}

func newWriterMetrics() writer.Metrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}

	return &writerMetrics{
		pushOperations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "framefeed_writer_push_total",
				Help: "Total number of Push calls by outcome",
			},
			[]string{"outcome"}, // "accepted", "dropped"
		),
		pushBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "framefeed_writer_push_bytes_total",
				Help: "Total packet bytes offered to the queue by outcome",
			},
			[]string{"outcome"},
		),
		sinkDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "framefeed_writer_sink_duration_milliseconds",
				Help: "Duration of sink calls in milliseconds",
				Buckets: []float64{
					0.5,
					1,
					5,
					10,
					50,
					100,  // slow archive backends
					500,
					1000,
					5000,
				},
			},
		),
		sinkBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "framefeed_writer_sink_bytes",
				Help: "Distribution of drained packet payload sizes",
				Buckets: []float64{
					4096,
					65536,
					262144,
					1048576,
					4194304,
					8388608,
					33554432,
				},
			},
		),
		queuedBytes: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "framefeed_writer_queued_bytes",
				Help: "Bytes currently held by the pending queue",
			},
		),
	}
}

func (m *writerMetrics) ObservePush(accepted bool, bytes int64) {
	outcome := "dropped"
	if accepted {
		outcome = "accepted"
	}
	m.pushOperations.WithLabelValues(outcome).Inc()
	m.pushBytes.WithLabelValues(outcome).Add(float64(bytes))
}

func (m *writerMetrics) ObserveSink(bytes int64, duration time.Duration) {
	m.sinkDuration.Observe(float64(duration.Microseconds()) / 1000.0)
	m.sinkBytes.Observe(float64(bytes))
}

func (m *writerMetrics) RecordQueuedBytes(bytes int64) {
	m.queuedBytes.Set(float64(bytes))
}
