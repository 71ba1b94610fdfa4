// Package modrunmetrics exposes prometheus counters/histograms for the
// module runtime, grounded on
// _examples/caddyserver-caddy/metrics.go's promauto-registered CounterVec
// pattern, generalized from "admin HTTP requests" to "module run
// outcomes."
package modrunmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts Module.Run invocations, partitioned by module key
	// and whether the call hit or missed the result cache.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modrun",
		Name:      "module_runs_total",
		Help:      "Count of Module.Run invocations by module key and cache outcome.",
	}, []string{"module", "outcome"})

	// RunDuration observes the wall-clock time of a ModuleBase.Run miss-path
	// invocation, by module key.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "modrun",
		Name:      "module_run_duration_seconds",
		Help:      "Duration of ModuleBase.Run invocations on a cache miss.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"module"})

	// DefaultWiringsTotal counts successful auto-wirings performed during
	// ModuleManager.At traversal, by property type name.
	DefaultWiringsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "modrun",
		Name:      "default_wirings_total",
		Help:      "Count of submodule slots auto-wired to a default candidate, by property type.",
	}, []string{"property_type"})
)
