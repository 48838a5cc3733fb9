package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCounters(t *testing.T) {
	r := NewRegistry()

	r.IncrCounter("c")
	r.AddCounter("c", 5)
	if got := r.Counter("c"); got != 6 {
		t.Fatalf("expected counter 6, got %d", got)
	}
	if got := r.Counter("unknown"); got != 0 {
		t.Fatalf("expected unknown counter 0, got %d", got)
	}
}

func TestGauges(t *testing.T) {
	r := NewRegistry()

	r.SetGauge("inflight", 3)
	r.SetGauge("inflight", 7)
	if got := r.Gauge("inflight"); got != 7 {
		t.Fatalf("expected gauge 7, got %d", got)
	}
	if got := r.Gauge("unknown"); got != 0 {
		t.Fatalf("expected unknown gauge 0, got %d", got)
	}
}

func TestTimerStats(t *testing.T) {
	r := NewRegistry()

	for _, ms := range []int{300, 100, 500, 200, 400} {
		r.RecordTimer("embed", time.Duration(ms)*time.Millisecond, nil)
	}

	stats, ok := r.TimerStats("embed")
	if !ok {
		t.Fatal("expected timer stats")
	}

	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"min", stats.Min, 100},
		{"max", stats.Max, 500},
		{"mean", stats.Mean, 300},
		{"p50", stats.P50, 300},
		{"p90", stats.P90, 450},
		{"p95", stats.P95, 500},
		{"p99", stats.P99, 500},
	}
	if stats.Count != 5 {
		t.Fatalf("expected count 5, got %d", stats.Count)
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestTimerStats_MedianOfEvenCount(t *testing.T) {
	r := NewRegistry()

	for _, ms := range []int{100, 200, 300, 400} {
		r.RecordTimer("t", time.Duration(ms)*time.Millisecond, nil)
	}

	stats, ok := r.TimerStats("t")
	if !ok {
		t.Fatal("expected timer stats")
	}
	if stats.P50 != 250 {
		t.Fatalf("expected p50 250 (median of even count), got %v", stats.P50)
	}
}

func TestTimerStats_Absent(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.TimerStats("never"); ok {
		t.Fatal("expected ok=false for unrecorded timer")
	}
}

func TestTimerStats_SingleSample(t *testing.T) {
	r := NewRegistry()
	r.RecordTimer("one", 42*time.Millisecond, nil)

	stats, ok := r.TimerStats("one")
	if !ok {
		t.Fatal("expected timer stats")
	}
	for name, got := range map[string]float64{
		"min": stats.Min, "max": stats.Max, "p50": stats.P50, "p99": stats.P99,
	} {
		if got != 42 {
			t.Errorf("%s = %v, want 42", name, got)
		}
	}
}

func TestHistogramStats(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 100; i++ {
		r.RecordHistogram("scores", float64(i))
	}

	stats, ok := r.HistogramStats("scores")
	if !ok {
		t.Fatal("expected histogram stats")
	}
	if stats.Count != 100 {
		t.Fatalf("expected count 100, got %d", stats.Count)
	}
	if stats.Min != 1 || stats.Max != 100 {
		t.Fatalf("expected min 1 max 100, got %v / %v", stats.Min, stats.Max)
	}
	// Nearest-rank at floor(p/100*(n-1)) selects the lower endpoint.
	if stats.P50 != 50 {
		t.Errorf("p50 = %v, want 50", stats.P50)
	}
	if stats.P90 != 90 {
		t.Errorf("p90 = %v, want 90", stats.P90)
	}
	if stats.P95 != 95 {
		t.Errorf("p95 = %v, want 95", stats.P95)
	}
}

func TestReset(t *testing.T) {
	r := NewRegistry()

	r.IncrCounter("c")
	r.SetGauge("g", 1)
	r.RecordTimer("t", time.Millisecond, nil)
	r.RecordHistogram("h", 1)

	r.Reset()

	if r.Counter("c") != 0 {
		t.Fatal("expected counter cleared")
	}
	if r.Gauge("g") != 0 {
		t.Fatal("expected gauge cleared")
	}
	if _, ok := r.TimerStats("t"); ok {
		t.Fatal("expected timer cleared")
	}
	if _, ok := r.HistogramStats("h"); ok {
		t.Fatal("expected histogram cleared")
	}
}

func TestTime_RecordsOnError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")

	err := r.Time("op", nil, func() error {
		time.Sleep(5 * time.Millisecond)
		return boom
	})
	if err != boom {
		t.Fatalf("expected original error back, got %v", err)
	}

	stats, ok := r.TimerStats("op")
	if !ok {
		t.Fatal("expected a sample despite the error")
	}
	if stats.Count != 1 {
		t.Fatalf("expected 1 sample, got %d", stats.Count)
	}
}

func TestTime_RecordsOnSuccess(t *testing.T) {
	r := NewRegistry()

	if err := r.Time("op", map[string]string{"k": "v"}, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := r.TimerStats("op"); !ok {
		t.Fatal("expected a sample")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.IncrCounter("c")
				r.SetGauge("g", int64(j))
				r.RecordTimer("t", time.Millisecond, nil)
				r.RecordHistogram("h", float64(j))
				r.TimerStats("t")
				r.HistogramStats("h")
				_ = r.Report()
			}
		}()
	}
	wg.Wait()

	if got := r.Counter("c"); got != 1000 {
		t.Fatalf("expected counter 1000, got %d", got)
	}
	stats, ok := r.TimerStats("t")
	if !ok || stats.Count != 1000 {
		t.Fatalf("expected 1000 timer samples, got %+v ok=%v", stats, ok)
	}
}
