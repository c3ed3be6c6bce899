// Package uvmetrics exports loop statistics as Prometheus metrics.
package uvmetrics

import (
	"github.com/joeycumines/go-uvloop"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is implemented by *uvloop.Loop.
type StatsSource interface {
	Stats() uvloop.Stats
}

type metric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(uvloop.Stats) float64
}

// Collector is a prometheus.Collector reading a loop's statistics on every
// scrape. Stats is safe for concurrent use, so scrapes need no coordination
// with the loop goroutine.
type Collector struct {
	source  StatsSource
	metrics []metric
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for source. namespace defaults to
// "uvloop"; every metric carries the constant label loop=name.
func NewCollector(source StatsSource, namespace, name string) *Collector {
	if namespace == "" {
		namespace = "uvloop"
	}
	labels := prometheus.Labels{"loop": name}
	desc := func(n, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", n), help, nil, labels)
	}
	gauge := func(n, help string, fn func(uvloop.Stats) float64) metric {
		return metric{desc(n, help), prometheus.GaugeValue, fn}
	}
	counter := func(n, help string, fn func(uvloop.Stats) float64) metric {
		return metric{desc(n, help), prometheus.CounterValue, fn}
	}
	return &Collector{
		source: source,
		metrics: []metric{
			gauge("open_handles", "Handles created and not yet closed.",
				func(s uvloop.Stats) float64 { return float64(s.OpenHandles) }),
			gauge("active_handles", "Active referenced handles.",
				func(s uvloop.Stats) float64 { return float64(s.ActiveHandles) }),
			gauge("active_requests", "Requests waiting for completion.",
				func(s uvloop.Stats) float64 { return float64(s.ActiveRequests) }),
			gauge("outstanding_tokens", "Continuations not yet redeemed.",
				func(s uvloop.Stats) float64 { return float64(s.OutstandingTokens) }),
			counter("completions_total", "Continuations run.",
				func(s uvloop.Stats) float64 { return float64(s.Completions) }),
			counter("deferred_failures_total", "Operations failed before reaching the reactor.",
				func(s uvloop.Stats) float64 { return float64(s.DeferredFailures) }),
			counter("recovered_panics_total", "Panics recovered from continuations and work functions.",
				func(s uvloop.Stats) float64 { return float64(s.RecoveredPanics) }),
			counter("submitted_total", "Functions submitted from other goroutines.",
				func(s uvloop.Stats) float64 { return float64(s.Submitted) }),
			counter("iterations_total", "Loop iterations.",
				func(s uvloop.Stats) float64 { return float64(s.Iterations) }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(s))
	}
}
