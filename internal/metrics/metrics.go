// Package metrics holds the prometheus collectors shared by alertcore and chart_renderer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RenderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alertcore",
		Name:      "notice_render_duration_seconds",
		Help:      "Time spent rendering one notice.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"notice_way", "shape"})

	ContextFieldFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alertcore",
		Name:      "context_field_failures_total",
		Help:      "Context fields that fell back to an empty value.",
	}, []string{"field"})

	FacetFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alertcore",
		Name:      "strategy_facet_failures_total",
		Help:      "Facet computations that failed and were emitted empty.",
	}, []string{"facet"})

	StrategyQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "alertcore",
		Name:      "strategy_query_duration_seconds",
		Help:      "End to end strategy query latency.",
		Buckets:   prometheus.DefBuckets,
	})

	CMDBMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alertcore",
		Name:      "cmdb_cache_misses_total",
		Help:      "CMDB cache lookups that returned nothing.",
	}, []string{"kind"})

	RenderWorkerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alertcore",
		Name:      "render_worker_messages_total",
		Help:      "Render requests consumed from kafka by result.",
	}, []string{"result"})

	ChartRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chart_renderer",
		Name:      "renders_total",
		Help:      "Chart render requests by result.",
	}, []string{"result"})
)
