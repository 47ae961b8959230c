// Package metrics exposes Prometheus collectors for verification runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scryshot",
		Subsystem: "run",
		Name:      "started_total",
		Help:      "Number of verification runs started.",
	})

	LaunchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scryshot",
			Subsystem: "run",
			Name:      "launch_failures_total",
			Help:      "Number of runs aborted because the browser could not be launched.",
		},
		[]string{"backend"},
	)

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "scryshot",
		Subsystem: "run",
		Name:      "active",
		Help:      "Number of runs currently holding a browser session.",
	})

	ScenarioResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scryshot",
			Subsystem: "scenario",
			Name:      "results_total",
			Help:      "Scenario outcomes by status.",
		},
		[]string{"status"},
	)

	ScenarioDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scryshot",
		Subsystem: "scenario",
		Name:      "duration_seconds",
		Help:      "Wall-clock time of a scenario including context setup.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
	})

	StepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scryshot",
			Subsystem: "step",
			Name:      "failures_total",
			Help:      "Step failures by step kind and error kind.",
		},
		[]string{"step", "kind"},
	)

	ScreenshotBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scryshot",
		Subsystem: "artifact",
		Name:      "screenshot_bytes_total",
		Help:      "Bytes of screenshot artifacts written.",
	})
)

func RecordRunStart() {
	RunsStarted.Inc()
	ActiveRuns.Inc()
}

func RecordRunEnd() {
	ActiveRuns.Dec()
}

func RecordLaunchFailure(backend string) {
	LaunchFailures.WithLabelValues(backend).Inc()
}

func RecordScenario(status string, d time.Duration) {
	ScenarioResults.WithLabelValues(status).Inc()
	ScenarioDuration.Observe(d.Seconds())
}

func RecordStepFailure(step, kind string) {
	StepFailures.WithLabelValues(step, kind).Inc()
}

func RecordScreenshot(n int) {
	if n > 0 {
		ScreenshotBytes.Add(float64(n))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
