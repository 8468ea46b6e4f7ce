package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initAnalysisMetrics() {
	r.AnalysesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mulewatch_analyses_total",
			Help: "Total number of analysis runs",
		},
		[]string{"status"},
	)

	r.AnalysisDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mulewatch_analysis_duration_seconds",
			Help:    "Wall-clock duration of full analysis runs",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"status"},
	)

	r.GraphNodesAnalyzed = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mulewatch_graph_nodes_analyzed",
			Help:    "Account count per analyzed transaction graph",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
	)

	r.GraphEdgesAnalyzed = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mulewatch_graph_edges_analyzed",
			Help:    "Aggregate edge count per analyzed transaction graph",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
	)

	r.RingsDetected = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mulewatch_rings_detected",
			Help:    "Detected ring count per analysis, by pattern",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"pattern"},
	)

	r.SuspiciousFlagged = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mulewatch_suspicious_accounts_flagged",
			Help:    "Flagged account count per analysis",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	r.WhatIfSimulationsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "mulewatch_whatif_simulations_total",
			Help: "Total number of what-if simulations",
		},
	)
}

func (r *Registry) initPartitionMetrics() {
	r.PartitionEvaluationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mulewatch_partition_evaluations_total",
			Help: "Ring partition evaluations, by backend",
		},
		[]string{"backend"},
	)

	r.PartitionBackendFailures = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "mulewatch_partition_backend_failures_total",
			Help: "Optimizer backend failures that triggered the fallback chain",
		},
		[]string{"backend"},
	)

	r.PartitionDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mulewatch_partition_duration_seconds",
			Help:    "Per-ring partition evaluation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
}
