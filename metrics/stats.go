package metrics

import (
	"math"
	"sort"
)

// Stats is a snapshot summary of one timer or histogram, derived at query
// time from an immutable copy of the sample list.
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	P50   float64
	P90   float64
	P95   float64
	P99   float64
}

// TimerStats summarizes the named timer in milliseconds. ok is false when no
// samples have been recorded.
//
// Timer percentiles use the half-rank estimator: the rank p/100*(n-1) is
// rounded to the nearest half step, and a midpoint rank averages the two
// neighboring samples. This makes p50 of an even-sized list the conventional
// median (the mean of the two middle samples).
func (r *Registry) TimerStats(name string) (Stats, bool) {
	samples := r.timerSamples(name)
	if len(samples) == 0 {
		return Stats{}, false
	}
	return summarize(samples, percentileMid), true
}

// HistogramStats summarizes the named histogram. ok is false when no samples
// have been recorded. Histogram percentiles use plain nearest-rank selection
// at index floor(p/100*(n-1)); no interpolation.
func (r *Registry) HistogramStats(name string) (Stats, bool) {
	samples := r.histogramSamples(name)
	if len(samples) == 0 {
		return Stats{}, false
	}
	return summarize(samples, percentileRank), true
}

// summarize computes stats over samples using the given percentile estimator.
// samples is owned by the caller and is sorted in place.
func summarize(samples []float64, pct func(sorted []float64, p float64) float64) Stats {
	sort.Float64s(samples)

	var sum float64
	for _, v := range samples {
		sum += v
	}

	n := len(samples)
	return Stats{
		Count: n,
		Min:   samples[0],
		Max:   samples[n-1],
		Mean:  sum / float64(n),
		P50:   pct(samples, 50),
		P90:   pct(samples, 90),
		P95:   pct(samples, 95),
		P99:   pct(samples, 99),
	}
}

// percentileMid is the half-rank estimator: the fractional rank over n-1
// intervals is rounded to the nearest half step; whole ranks select a sample,
// half ranks average the two neighbors.
func percentileMid(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	r2 := int(math.Round(2 * p / 100 * float64(n-1)))
	if r2%2 == 0 {
		return sorted[r2/2]
	}
	return (sorted[r2/2] + sorted[r2/2+1]) / 2
}

// percentileRank is nearest-rank selection at index floor(p/100*(n-1)).
func percentileRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	idx := int(math.Floor(p / 100 * float64(n-1)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
