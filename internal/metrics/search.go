package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Search and build Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total search calls by method and outcome",
		},
		[]string{"method", "status"},
	)

	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method"},
	)

	BuildDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_documents_total",
			Help:      "Documents processed by builds, by outcome (inserted, skipped, embedded)",
		},
		[]string{"outcome"},
	)
)

var registerOnce sync.Once

// Register registers every ragstore collector with reg (the default registry when nil).
// Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		collectors := embeddingCollectors()
		collectors = append(collectors, SearchRequestsTotal, SearchDuration, BuildDocumentsTotal)
		collectors = append(collectors, httpCollectors()...)
		reg.MustRegister(collectors...)
	})
}
