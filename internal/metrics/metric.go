// Package metrics measures the profiler's own overhead and exports it.
package metrics

import "time"

// Metric accumulates durations recorded under one name.
type Metric struct {
	Counter int64
	Total   time.Duration
	Max     time.Duration
}

// Add records one measurement.
func (m *Metric) Add(d time.Duration) {
	m.Counter++
	m.Total += d
	if d > m.Max {
		m.Max = d
	}
}

// Average returns Total/Counter, or zero when nothing was recorded.
func (m Metric) Average() time.Duration {
	if m.Counter == 0 {
		return 0
	}
	return m.Total / time.Duration(m.Counter)
}
