package metrics

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	entryStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procdash",
			Subsystem: "entry",
			Name:      "starts_total",
			Help:      "Number of successful process starts.",
		}, []string{"name"},
	)
	entryStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procdash",
			Subsystem: "entry",
			Name:      "stops_total",
			Help:      "Number of user stops confirmed by the OS.",
		}, []string{"name"},
	)
	entryUnexpectedExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procdash",
			Subsystem: "entry",
			Name:      "unexpected_exits_total",
			Help:      "Number of processes that exited without being stopped.",
		}, []string{"name"},
	)
	entryFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "procdash",
			Subsystem: "entry",
			Name:      "failures_total",
			Help:      "Number of failed starts and stops by kind (configuration, launch, termination).",
		}, []string{"name", "kind"},
	)
	launchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "procdash",
			Subsystem: "entry",
			Name:      "launch_duration_seconds",
			Help:      "Time spent spawning a process.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"name"},
	)
	runningEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "procdash",
			Name:      "running_entries",
			Help:      "Current number of running entries.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{entryStarts, entryStops, entryUnexpectedExits, entryFailures, launchDuration, runningEntries}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
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

// WriteTextfile writes everything g gathers to path in the Prometheus text
// format, for node_exporter's textfile collector. The write is atomic.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("metrics textfile dir: %w", err)
	}
	return prometheus.WriteToTextfile(path, g)
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		entryStarts.WithLabelValues(name).Inc()
	}
}

func IncStop(name string) {
	if regOK.Load() {
		entryStops.WithLabelValues(name).Inc()
	}
}

func IncUnexpectedExit(name string) {
	if regOK.Load() {
		entryUnexpectedExits.WithLabelValues(name).Inc()
	}
}

func IncFailure(name, kind string) {
	if regOK.Load() {
		entryFailures.WithLabelValues(name, kind).Inc()
	}
}

func ObserveLaunchDuration(name string, seconds float64) {
	if regOK.Load() {
		launchDuration.WithLabelValues(name).Observe(seconds)
	}
}

func SetRunningEntries(n int) {
	if regOK.Load() {
		runningEntries.Set(float64(n))
	}
}
