package perf

import (
	"sort"
	"testing"
	"time"
)

func TestHttpLatencyTargets(t *testing.T) {
	scenarios := []struct {
		name      string
		samples   []time.Duration
		threshold time.Duration
	}{
		{
			// Plain API reads: list and detail endpoints backed by indexed queries.
			name:      "api reads",
			samples:   []time.Duration{35 * time.Millisecond, 40 * time.Millisecond, 55 * time.Millisecond, 70 * time.Millisecond, 90 * time.Millisecond, 110 * time.Millisecond, 130 * time.Millisecond, 160 * time.Millisecond, 210 * time.Millisecond, 240 * time.Millisecond},
			threshold: 500 * time.Millisecond,
		},
		{
			// Quotation PDF rendering goes through the document converter.
			name:      "document render",
			samples:   []time.Duration{600 * time.Millisecond, 700 * time.Millisecond, 800 * time.Millisecond, 900 * time.Millisecond, 1000 * time.Millisecond, 1100 * time.Millisecond, 1250 * time.Millisecond, 1400 * time.Millisecond, 1600 * time.Millisecond, 1800 * time.Millisecond},
			threshold: 2 * time.Second,
		},
	}

	for _, scenario := range scenarios {
		p95 := percentile95(scenario.samples)
		if p95 > scenario.threshold {
			t.Fatalf("%s latency regression: p95=%s threshold=%s", scenario.name, p95, scenario.threshold)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
