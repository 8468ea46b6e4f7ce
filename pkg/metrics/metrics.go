package metrics

import (
	"runtime"
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordAnalysis records one completed (or failed) analysis run.
func (r *Registry) RecordAnalysis(status string, duration time.Duration, nodes, edges, flagged int) {
	r.AnalysesTotal.WithLabelValues(status).Inc()
	r.AnalysisDuration.WithLabelValues(status).Observe(duration.Seconds())
	r.GraphNodesAnalyzed.Observe(float64(nodes))
	r.GraphEdgesAnalyzed.Observe(float64(edges))
	r.SuspiciousFlagged.Observe(float64(flagged))
}

// RecordRings records the per-pattern ring counts of one analysis.
func (r *Registry) RecordRings(byPattern map[string]int) {
	for pattern, count := range byPattern {
		r.RingsDetected.WithLabelValues(pattern).Observe(float64(count))
	}
}

// RecordPartition records one ring partition evaluation.
func (r *Registry) RecordPartition(backend string, duration time.Duration) {
	r.PartitionEvaluationsTotal.WithLabelValues(backend).Inc()
	r.PartitionDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordPartitionFailure records an optimizer backend failure.
func (r *Registry) RecordPartitionFailure(backend string) {
	r.PartitionBackendFailures.WithLabelValues(backend).Inc()
}

// RecordWhatIf counts a what-if simulation.
func (r *Registry) RecordWhatIf() {
	r.WhatIfSimulationsTotal.Inc()
}

// UpdateSystemMetrics refreshes the runtime gauges.
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
}
