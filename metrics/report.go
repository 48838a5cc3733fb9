package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Report renders a deterministic textual snapshot of the registry with
// sections for counters, gauges, timers, and histograms. Names are sorted
// within each section. Timer stats print in integer milliseconds, histogram
// stats in full precision. Downstream tooling parses this output; the format
// is a stable contract.
func (r *Registry) Report() string {
	var b strings.Builder

	b.WriteString("## Counters\n")
	for _, name := range sortedKeys(r.counterSnapshot()) {
		fmt.Fprintf(&b, "%s: %d\n", name, r.Counter(name))
	}

	b.WriteString("\n## Gauges\n")
	for _, name := range sortedKeys(r.gaugeSnapshot()) {
		fmt.Fprintf(&b, "%s: %d\n", name, r.Gauge(name))
	}

	b.WriteString("\n## Timers\n")
	for _, name := range r.timerNames() {
		stats, ok := r.TimerStats(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", name)
		fmt.Fprintf(&b, "  count: %d\n", stats.Count)
		fmt.Fprintf(&b, "  min: %dms\n", roundMs(stats.Min))
		fmt.Fprintf(&b, "  max: %dms\n", roundMs(stats.Max))
		fmt.Fprintf(&b, "  mean: %dms\n", roundMs(stats.Mean))
		fmt.Fprintf(&b, "  p50: %dms\n", roundMs(stats.P50))
		fmt.Fprintf(&b, "  p90: %dms\n", roundMs(stats.P90))
		fmt.Fprintf(&b, "  p95: %dms\n", roundMs(stats.P95))
		fmt.Fprintf(&b, "  p99: %dms\n", roundMs(stats.P99))
	}

	b.WriteString("\n## Histograms\n")
	for _, name := range r.histogramNames() {
		stats, ok := r.HistogramStats(name)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", name)
		fmt.Fprintf(&b, "  count: %d\n", stats.Count)
		fmt.Fprintf(&b, "  min: %s\n", formatValue(stats.Min))
		fmt.Fprintf(&b, "  max: %s\n", formatValue(stats.Max))
		fmt.Fprintf(&b, "  mean: %s\n", formatValue(stats.Mean))
		fmt.Fprintf(&b, "  p50: %s\n", formatValue(stats.P50))
		fmt.Fprintf(&b, "  p90: %s\n", formatValue(stats.P90))
		fmt.Fprintf(&b, "  p95: %s\n", formatValue(stats.P95))
		fmt.Fprintf(&b, "  p99: %s\n", formatValue(stats.P99))
	}

	return b.String()
}

func (r *Registry) counterSnapshot() []string {
	r.countersMu.RLock()
	defer r.countersMu.RUnlock()
	names := make([]string, 0, len(r.counters))
	for name := range r.counters {
		names = append(names, name)
	}
	return names
}

func (r *Registry) gaugeSnapshot() []string {
	r.gaugesMu.RLock()
	defer r.gaugesMu.RUnlock()
	names := make([]string, 0, len(r.gauges))
	for name := range r.gauges {
		names = append(names, name)
	}
	return names
}

func (r *Registry) timerNames() []string {
	r.timersMu.Lock()
	names := make([]string, 0, len(r.timers))
	for name := range r.timers {
		names = append(names, name)
	}
	r.timersMu.Unlock()
	sort.Strings(names)
	return names
}

func (r *Registry) histogramNames() []string {
	r.histsMu.Lock()
	names := make([]string, 0, len(r.histograms))
	for name := range r.histograms {
		names = append(names, name)
	}
	r.histsMu.Unlock()
	sort.Strings(names)
	return names
}

func sortedKeys(names []string) []string {
	sort.Strings(names)
	return names
}

func roundMs(v float64) int64 {
	return int64(math.Round(v))
}

// formatValue prints whole numbers with a trailing .0 so histogram lines are
// unambiguously floating point, and everything else at full precision.
func formatValue(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatFloat(v, 'f', 1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
