package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	bootstrapRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeboot",
			Subsystem: "bootstrap",
			Name:      "runs_total",
			Help:      "Bootstrap runs by terminal outcome (success, main_failed, setup_failed).",
		}, []string{"outcome"},
	)
	bootstrapDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tradeboot",
			Subsystem: "bootstrap",
			Name:      "duration_seconds",
			Help:      "Wall time of the setup phase (verify, deps, log dir).",
			Buckets:   prometheus.DefBuckets,
		},
	)
	depChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeboot",
			Subsystem: "deps",
			Name:      "checks_total",
			Help:      "Import probes by module and result (present, missing).",
		}, []string{"module", "result"},
	)
	depInstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeboot",
			Subsystem: "deps",
			Name:      "installs_total",
			Help:      "pip install attempts by package and result (ok, failed).",
		}, []string{"package", "result"},
	)
	childStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeboot",
			Subsystem: "child",
			Name:      "starts_total",
			Help:      "Spawned child processes by name (monitor, main).",
		}, []string{"name"},
	)
	childExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeboot",
			Subsystem: "child",
			Name:      "exits_total",
			Help:      "Observed child exits by name and outcome (success, failure).",
		}, []string{"name", "outcome"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{bootstrapRuns, bootstrapDuration, depChecks, depInstalls, childStarts, childExits}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// Already-registered collectors are fine (double Register with default registry).
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// RegisterDefault registers against the default Prometheus registry.
func RegisterDefault() error { return Register(prometheus.DefaultRegisterer) }

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncBootstrapRun(outcome string) {
	if regOK.Load() {
		bootstrapRuns.WithLabelValues(outcome).Inc()
	}
}

func ObserveBootstrapDuration(seconds float64) {
	if regOK.Load() {
		bootstrapDuration.Observe(seconds)
	}
}

func IncDepCheck(module string, present bool) {
	if regOK.Load() {
		result := "present"
		if !present {
			result = "missing"
		}
		depChecks.WithLabelValues(module, result).Inc()
	}
}

func IncDepInstall(pkg string, ok bool) {
	if regOK.Load() {
		result := "ok"
		if !ok {
			result = "failed"
		}
		depInstalls.WithLabelValues(pkg, result).Inc()
	}
}

func IncChildStart(name string) {
	if regOK.Load() {
		childStarts.WithLabelValues(name).Inc()
	}
}

func IncChildExit(name string, exitCode int) {
	if regOK.Load() {
		outcome := "success"
		if exitCode != 0 {
			outcome = "failure"
		}
		childExits.WithLabelValues(name, outcome).Inc()
	}
}

// IncChildStopped records a forced termination, which carries no meaningful
// exit code.
func IncChildStopped(name string) {
	if regOK.Load() {
		childExits.WithLabelValues(name, "stopped").Inc()
	}
}
