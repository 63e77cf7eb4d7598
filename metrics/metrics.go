// Package metrics exposes the Prometheus counters/gauges the core reports
// (§4.K): operation counts, script reloads, cleanup sweeps, and the cached
// memory-pressure gauge. Naming loosely mirrors stats/target_stats.go's
// "*.n" (counter) / "*.ns" (latency) / "*.size" (bytes) convention, adapted
// to Prometheus label/unit conventions instead of that package's flat
// string-keyed stats lines.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Set is the process-wide metric registration. Each field is already
// registered with the Registerer passed to New.
type Set struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	ScriptReloadsTotal *prometheus.CounterVec
	CleanupRunsTotal  prometheus.Counter
	CleanupCleanedTotal prometheus.Counter
	ExpiredBacklog    prometheus.Gauge
	MemoryUsedPercent prometheus.Gauge
}

// New registers and returns the metric Set against reg.
func New(reg prometheus.Registerer) *Set {
	s := &Set{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reststore",
			Name:      "operations_total",
			Help:      "Count of resource-store operations by kind and outcome.",
		}, []string{"operation", "outcome"}),

		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reststore",
			Name:      "operation_duration_seconds",
			Help:      "Resource-store operation latency by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		ScriptReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reststore",
			Name:      "script_reloads_total",
			Help:      "Count of NOSCRIPT-triggered script reloads by script kind.",
		}, []string{"script"}),

		CleanupRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reststore",
			Name:      "cleanup_runs_total",
			Help:      "Count of CLEANUP invocations.",
		}),

		CleanupCleanedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reststore",
			Name:      "cleanup_cleaned_resources_total",
			Help:      "Count of resources removed by CLEANUP across all sweeps.",
		}),

		ExpiredBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reststore",
			Name:      "expired_resources_backlog",
			Help:      "Expired resources still pending cleanup as of the last sweep.",
		}),

		MemoryUsedPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reststore",
			Name:      "backend_memory_used_percent",
			Help:      "Backend used_memory as a percentage of total_system_memory.",
		}),
	}

	reg.MustRegister(
		s.OperationsTotal,
		s.OperationDuration,
		s.ScriptReloadsTotal,
		s.CleanupRunsTotal,
		s.CleanupCleanedTotal,
		s.ExpiredBacklog,
		s.MemoryUsedPercent,
	)
	return s
}

// ObserveOperation records one completed operation's outcome and latency.
func (s *Set) ObserveOperation(operation, outcome string, seconds float64) {
	s.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	s.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// ObserveCleanup records one CLEANUP invocation's result.
func (s *Set) ObserveCleanup(cleaned, backlog int64) {
	s.CleanupRunsTotal.Inc()
	s.CleanupCleanedTotal.Add(float64(cleaned))
	s.ExpiredBacklog.Set(float64(backlog))
}
