// Package metrics provides a concurrent in-process registry of counters,
// gauges, timers, and histograms, with snapshot statistics, a stable textual
// report, and a Prometheus bridge for scraping.
//
// Counters and gauges are lock-free atomics behind a map guard; timers and
// histograms are append-only sample lists under a coarse per-family mutex,
// which is sufficient for an append-mostly workload. Readers always operate
// on snapshot copies and never observe a list mutated mid-iteration.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimerSample is one recorded duration with its tags.
type TimerSample struct {
	DurationMs int64
	Tags       map[string]string
	At         time.Time
}

// Registry is the process-wide aggregation state. A single shared instance
// is reachable from every strategy and batch executor. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	countersMu sync.RWMutex
	counters   map[string]*atomic.Int64

	gaugesMu sync.RWMutex
	gauges   map[string]*atomic.Int64

	timersMu sync.Mutex
	timers   map[string][]TimerSample

	histsMu    sync.Mutex
	histograms map[string][]float64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*atomic.Int64),
		gauges:     make(map[string]*atomic.Int64),
		timers:     make(map[string][]TimerSample),
		histograms: make(map[string][]float64),
	}
}

// IncrCounter increments the named counter by 1.
func (r *Registry) IncrCounter(name string) {
	r.AddCounter(name, 1)
}

// AddCounter increments the named counter by delta.
func (r *Registry) AddCounter(name string, delta int64) {
	r.counter(name).Add(delta)
}

// Counter returns the named counter's value, 0 when it was never incremented.
func (r *Registry) Counter(name string) int64 {
	r.countersMu.RLock()
	c := r.counters[name]
	r.countersMu.RUnlock()
	if c == nil {
		return 0
	}
	return c.Load()
}

// SetGauge sets the named gauge to value.
func (r *Registry) SetGauge(name string, value int64) {
	r.gauge(name).Store(value)
}

// Gauge returns the named gauge's value, 0 when it was never set.
func (r *Registry) Gauge(name string) int64 {
	r.gaugesMu.RLock()
	g := r.gauges[name]
	r.gaugesMu.RUnlock()
	if g == nil {
		return 0
	}
	return g.Load()
}

// RecordTimer appends a duration sample to the named timer. tags may be nil.
func (r *Registry) RecordTimer(name string, d time.Duration, tags map[string]string) {
	sample := TimerSample{DurationMs: d.Milliseconds(), Tags: tags, At: time.Now()}
	r.timersMu.Lock()
	r.timers[name] = append(r.timers[name], sample)
	r.timersMu.Unlock()
}

// RecordHistogram appends a value to the named histogram.
func (r *Registry) RecordHistogram(name string, value float64) {
	r.histsMu.Lock()
	r.histograms[name] = append(r.histograms[name], value)
	r.histsMu.Unlock()
}

// Time runs fn and records its wall-clock duration under the named timer.
// The sample is recorded even when fn returns an error; the error is then
// returned unchanged. Timing and error propagation are independent effects.
func (r *Registry) Time(name string, tags map[string]string, fn func() error) error {
	start := time.Now()
	err := fn()
	r.RecordTimer(name, time.Since(start), tags)
	return err
}

// Reset clears all four metric families. Each family is cleared atomically
// with respect to its concurrent readers.
func (r *Registry) Reset() {
	r.countersMu.Lock()
	r.counters = make(map[string]*atomic.Int64)
	r.countersMu.Unlock()

	r.gaugesMu.Lock()
	r.gauges = make(map[string]*atomic.Int64)
	r.gaugesMu.Unlock()

	r.timersMu.Lock()
	r.timers = make(map[string][]TimerSample)
	r.timersMu.Unlock()

	r.histsMu.Lock()
	r.histograms = make(map[string][]float64)
	r.histsMu.Unlock()
}

// counter returns the atomic cell for name, creating it on first use.
func (r *Registry) counter(name string) *atomic.Int64 {
	r.countersMu.RLock()
	c := r.counters[name]
	r.countersMu.RUnlock()
	if c != nil {
		return c
	}

	r.countersMu.Lock()
	defer r.countersMu.Unlock()
	if c = r.counters[name]; c == nil {
		c = new(atomic.Int64)
		r.counters[name] = c
	}
	return c
}

// gauge returns the atomic cell for name, creating it on first use.
func (r *Registry) gauge(name string) *atomic.Int64 {
	r.gaugesMu.RLock()
	g := r.gauges[name]
	r.gaugesMu.RUnlock()
	if g != nil {
		return g
	}

	r.gaugesMu.Lock()
	defer r.gaugesMu.Unlock()
	if g = r.gauges[name]; g == nil {
		g = new(atomic.Int64)
		r.gauges[name] = g
	}
	return g
}

// timerSamples returns a snapshot copy of the named timer's sample values
// in milliseconds.
func (r *Registry) timerSamples(name string) []float64 {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	samples := r.timers[name]
	if len(samples) == 0 {
		return nil
	}
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s.DurationMs)
	}
	return out
}

// histogramSamples returns a snapshot copy of the named histogram's values.
func (r *Registry) histogramSamples(name string) []float64 {
	r.histsMu.Lock()
	defer r.histsMu.Unlock()
	samples := r.histograms[name]
	if len(samples) == 0 {
		return nil
	}
	out := make([]float64, len(samples))
	copy(out, samples)
	return out
}
