package health

import (
	"fmt"
	"runtime"
	"time"
)

// AnalysisStoreCheck reports whether a completed analysis is available for
// the read endpoints. No analysis yet is degraded, not unhealthy: the server
// can still accept uploads.
func AnalysisStoreCheck(latest func() (runID string, generatedAt time.Time, ok bool)) CheckFunc {
	return func() Check {
		check := Check{
			Name:    "analysis_store",
			Details: make(map[string]any),
		}

		runID, generatedAt, ok := latest()
		if !ok {
			check.Status = StatusDegraded
			check.Message = "No analysis completed yet"
			return check
		}

		check.Status = StatusHealthy
		check.Message = "Latest analysis available"
		check.Details["run_id"] = runID
		check.Details["generated_at"] = generatedAt
		return check
	}
}

// OptimizerCheck reports whether the remote optimizer backend is reachable.
// An unreachable remote is degraded because the local sampler still covers
// every ring.
func OptimizerCheck(ping func() error, configured bool) CheckFunc {
	return func() Check {
		check := Check{
			Name: "optimizer",
		}

		if !configured {
			check.Status = StatusHealthy
			check.Message = "Local sampler only"
			return check
		}

		if err := ping(); err != nil {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Remote optimizer unreachable: %v", err)
			return check
		}

		check.Status = StatusHealthy
		check.Message = "Remote optimizer reachable"
		return check
	}
}

// EngineInfoCheck is always healthy; it exposes the engine identity and the
// configured optimizer backends to health consumers.
func EngineInfoCheck(version string, remoteOptimizer bool) CheckFunc {
	backends := "anneal, fallback"
	if remoteOptimizer {
		backends = "remote, anneal, fallback"
	}
	return func() Check {
		return Check{
			Name:    "engine",
			Status:  StatusHealthy,
			Message: "mulewatch " + version,
			Details: map[string]any{
				"version":  version,
				"backends": backends,
			},
		}
	}
}

// ArchiveCheck reports run-history database connectivity.
func ArchiveCheck(pingFunc func() error) CheckFunc {
	return func() Check {
		check := Check{
			Name: "archive",
		}

		if err := pingFunc(); err != nil {
			check.Status = StatusUnhealthy
			check.Message = err.Error()
		} else {
			check.Status = StatusHealthy
			check.Message = "Connected"
		}

		return check
	}
}

// MemoryCheck reports memory pressure against a heap threshold.
func MemoryCheck(maxHeapBytes uint64) CheckFunc {
	return func() Check {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		check := Check{
			Name: "memory",
			Details: map[string]any{
				"heap_alloc_bytes": m.HeapAlloc,
				"goroutines":       runtime.NumGoroutine(),
			},
		}

		if maxHeapBytes > 0 && m.HeapAlloc > maxHeapBytes {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Heap above threshold: %d > %d", m.HeapAlloc, maxHeapBytes)
		} else {
			check.Status = StatusHealthy
		}

		return check
	}
}
