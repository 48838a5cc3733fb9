package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bridge exposes a Registry as a prometheus.Collector. Counters and gauges
// map directly; timers and histograms are exported as summaries carrying the
// registry's snapshot quantiles. The bridge reads live state on every scrape,
// so it is registered once and never needs refreshing.
type Bridge struct {
	registry  *Registry
	namespace string
}

// NewBridge wraps registry for scraping under the given metric namespace
// prefix (e.g. "ragshield").
func NewBridge(registry *Registry, namespace string) *Bridge {
	return &Bridge{registry: registry, namespace: namespace}
}

// Describe implements prometheus.Collector. The metric set is dynamic, so
// descriptions are derived from a live collect.
func (b *Bridge) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(b, ch)
}

// Collect implements prometheus.Collector.
func (b *Bridge) Collect(ch chan<- prometheus.Metric) {
	for _, name := range sortedKeys(b.registry.counterSnapshot()) {
		ch <- prometheus.MustNewConstMetric(
			b.desc(name, "total", "Counter exported from the ragshield metrics registry."),
			prometheus.CounterValue,
			float64(b.registry.Counter(name)),
		)
	}

	for _, name := range sortedKeys(b.registry.gaugeSnapshot()) {
		ch <- prometheus.MustNewConstMetric(
			b.desc(name, "", "Gauge exported from the ragshield metrics registry."),
			prometheus.GaugeValue,
			float64(b.registry.Gauge(name)),
		)
	}

	for _, name := range b.registry.timerNames() {
		stats, ok := b.registry.TimerStats(name)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstSummary(
			b.desc(name, "ms", "Timer exported from the ragshield metrics registry."),
			uint64(stats.Count),
			stats.Mean*float64(stats.Count),
			quantiles(stats),
		)
	}

	for _, name := range b.registry.histogramNames() {
		stats, ok := b.registry.HistogramStats(name)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstSummary(
			b.desc(name, "", "Histogram exported from the ragshield metrics registry."),
			uint64(stats.Count),
			stats.Mean*float64(stats.Count),
			quantiles(stats),
		)
	}
}

// Handler returns an http.Handler serving the given collectors from a private
// Prometheus registry. A private registry avoids duplicate-collector panics
// when handlers are constructed more than once (e.g. in tests).
func Handler(collectors ...prometheus.Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors...)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (b *Bridge) desc(name, suffix, help string) *prometheus.Desc {
	full := b.namespace + "_" + name
	if suffix != "" {
		full += "_" + suffix
	}
	return prometheus.NewDesc(sanitizeName(full), help, nil, nil)
}

func quantiles(stats Stats) map[float64]float64 {
	return map[float64]float64{
		0.5:  stats.P50,
		0.9:  stats.P90,
		0.95: stats.P95,
		0.99: stats.P99,
	}
}

// sanitizeName maps registry key characters that are invalid in Prometheus
// metric names (dots, dashes) to underscores.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		default:
			return '_'
		}
	}, name)
}
