// Copyright (c) 2026 The Doeff Authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package doeff

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// runtimeMetrics wraps the Prometheus collectors for one interpreter
// process: step throughput, frame depth, and task/handler counts, the
// observability surface spec.md §6 names distinct from the in-program
// writer log (which is program data, not process telemetry).
type runtimeMetrics struct {
	registry *prometheus.Registry

	stepsTotal           *prometheus.CounterVec
	effectsDispatched    *prometheus.CounterVec
	unhandledEffectTotal prometheus.Counter
	tasksSpawned         *prometheus.CounterVec
	tasksCompleted       *prometheus.CounterVec

	kDepth        prometheus.Histogram
	handlerDepth  prometheus.Histogram
	activeTasks   prometheus.Gauge
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
}

var promMetrics *runtimeMetrics

// initMetrics initializes the process-wide metrics registry; safe to call
// more than once, each call replaces the previous registry.
func initMetrics(namespace string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &runtimeMetrics{
		registry: registry,

		stepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total CESK reduction steps by control kind",
			},
			[]string{"control"},
		),

		effectsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effects_dispatched_total",
				Help:      "Total effects dispatched by outcome decision",
			},
			[]string{"decision"},
		),

		unhandledEffectTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unhandled_effects_total",
				Help:      "Total effects that reached the bottom of the handler stack unresolved",
			},
		),

		tasksSpawned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_spawned_total",
				Help:      "Total tasks spawned by backend",
			},
			[]string{"backend"},
		),

		tasksCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_completed_total",
				Help:      "Total tasks completed by outcome",
			},
			[]string{"outcome"}, // ok, error, cancelled
		),

		kDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "k_depth",
				Help:      "Observed continuation stack depth at effect dispatch",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512},
			},
		),

		handlerDepth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handler_depth",
				Help:      "Observed handler stack depth at effect dispatch",
				Buckets:   []float64{1, 2, 4, 8, 16, 32},
			},
		),

		activeTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_tasks",
				Help:      "Currently running spawned tasks",
			},
		),

		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total CacheGet hits against the persistent cache",
			},
		),

		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total CacheGet misses against the persistent cache",
			},
		),
	}

	registry.MustRegister(
		pm.stepsTotal,
		pm.effectsDispatched,
		pm.unhandledEffectTotal,
		pm.tasksSpawned,
		pm.tasksCompleted,
		pm.kDepth,
		pm.handlerDepth,
		pm.activeTasks,
		pm.cacheHits,
		pm.cacheMisses,
	)

	promMetrics = pm
}

func recordStep(control string) {
	if promMetrics == nil {
		return
	}
	promMetrics.stepsTotal.WithLabelValues(control).Inc()
}

func recordDispatch(decision string, kDepth, handlerDepth int) {
	if promMetrics == nil {
		return
	}
	promMetrics.effectsDispatched.WithLabelValues(decision).Inc()
	promMetrics.kDepth.Observe(float64(kDepth))
	promMetrics.handlerDepth.Observe(float64(handlerDepth))
}

func recordUnhandledEffect() {
	if promMetrics == nil {
		return
	}
	promMetrics.unhandledEffectTotal.Inc()
}

func recordTaskSpawned(backend string) {
	if promMetrics == nil {
		return
	}
	promMetrics.tasksSpawned.WithLabelValues(backend).Inc()
	promMetrics.activeTasks.Inc()
}

func recordTaskCompleted(outcome string) {
	if promMetrics == nil {
		return
	}
	promMetrics.tasksCompleted.WithLabelValues(outcome).Inc()
	promMetrics.activeTasks.Dec()
}

func recordCacheHit(hit bool) {
	if promMetrics == nil {
		return
	}
	if hit {
		promMetrics.cacheHits.Inc()
	} else {
		promMetrics.cacheMisses.Inc()
	}
}

// MetricsHandler returns an HTTP handler exposing the interpreter's
// Prometheus metrics, or a 503 placeholder if InitMetrics was never called.
func MetricsHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("doeff: metrics not initialized, call InitMetrics first"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// InitMetrics initializes the process-wide Prometheus registry used by the
// interpreter's step/dispatch/task/cache counters. Call once at process
// startup before running programs; safe to call again to reset collectors
// (e.g. between test cases).
func InitMetrics(namespace string) {
	initMetrics(namespace)
}
