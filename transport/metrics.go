package transport

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the host-level counters/gauges exposed for operators. Non-goals
// exclude congestion control *driven by* metrics, not observability itself.
type Metrics struct {
	PeersConnected   prometheus.Gauge
	PacketsRetried   prometheus.Counter
	PeersEvicted     *prometheus.CounterVec
	ReorderOccupancy prometheus.Gauge
}

// NewMetrics builds and registers a Metrics set against reg. Passing a
// fresh prometheus.NewRegistry() keeps multiple Hosts in a test binary from
// colliding on the default global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pvct",
			Name:      "peers_connected",
			Help:      "Number of peers currently connected.",
		}),
		PacketsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pvct",
			Name:      "packets_retried_total",
			Help:      "Total reliable packets re-sent by tick_resends.",
		}),
		PeersEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pvct",
			Name:      "peers_evicted_total",
			Help:      "Total peers evicted, labeled by reason.",
		}, []string{"reason"}),
		ReorderOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pvct",
			Name:      "reorder_buffer_occupancy",
			Help:      "Sum of reorder-buffer entries across all peers.",
		}),
	}
	reg.MustRegister(m.PeersConnected, m.PacketsRetried, m.PeersEvicted, m.ReorderOccupancy)
	return m
}
