// Package metrics defines the engine's Prometheus instrumentation: flush
// tick duration, write outcomes by error code, and search outcomes.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's Prometheus collectors. Callers register
// them via MustRegister once per partition; collection/partition are
// constant labels so multiple engine instances in one process don't
// collide.
type Metrics struct {
	FlushDurationMS prometheus.Histogram
	Writes          *prometheus.CounterVec
	Searches        *prometheus.CounterVec
	ReplayProgress  prometheus.Gauge
}

// New builds a fresh Metrics set labeled with collection/partition.
func New(collection string, partition uint32) *Metrics {
	constLabels := prometheus.Labels{
		"collection": collection,
		"partition":  strconv.FormatUint(uint64(partition), 10),
	}

	return &Metrics{
		FlushDurationMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "docengine",
			Subsystem:   "flush",
			Name:        "duration_ms",
			Help:        "Duration of a background flush tick, in milliseconds.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(1, 2, 12),
		}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "docengine",
			Subsystem:   "write",
			Name:        "total",
			Help:        "Write requests by write_type and result code.",
			ConstLabels: constLabels,
		}, []string{"write_type", "code"}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "docengine",
			Subsystem:   "search",
			Name:        "total",
			Help:        "Search requests by result code.",
			ConstLabels: constLabels,
		}, []string{"code"}),
		ReplayProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "docengine",
			Subsystem:   "replay",
			Name:        "last_index",
			Help:        "Highest log index applied during the most recent replay.",
			ConstLabels: constLabels,
		}),
	}
}

// MustRegister registers every collector in m with reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.FlushDurationMS, m.Writes, m.Searches, m.ReplayProgress)
}
