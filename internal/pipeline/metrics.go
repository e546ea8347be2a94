package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pipelineMetrics holds the Prometheus collectors owned by a Pipeline.
type pipelineMetrics struct {
	// intentTotal counts classified queries by intent.
	intentTotal *prometheus.CounterVec

	// provenanceTotal counts responses by provenance tag.
	provenanceTotal *prometheus.CounterVec

	// stageDuration records per-stage latency: route, retrieve, assemble, respond.
	stageDuration *prometheus.HistogramVec

	// retriesTotal counts failed attempts that were retried, by operation.
	retriesTotal *prometheus.CounterVec
}

func newPipelineMetrics(reg prometheus.Registerer) *pipelineMetrics {
	factory := promauto.With(reg)

	return &pipelineMetrics{
		intentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flarerag",
			Subsystem: "pipeline",
			Name:      "intent_total",
			Help:      "Queries classified by the router, partitioned by intent.",
		}, []string{"intent"}),

		provenanceTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flarerag",
			Subsystem: "pipeline",
			Name:      "provenance_total",
			Help:      "Responses produced, partitioned by provenance.",
		}, []string{"provenance"}),

		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flarerag",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),

		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flarerag",
			Subsystem: "pipeline",
			Name:      "retries_total",
			Help:      "External call attempts that failed and were retried, partitioned by operation.",
		}, []string{"op"}),
	}
}
