package metrics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Mode selects what a Timer measures.
type Mode int

const (
	// CPUTime measures CPU time consumed by the calling thread.
	CPUTime Mode = iota
	// WallTime measures elapsed time on the timer clock.
	WallTime
)

// ParseMode maps "cpu" and "wall" to a Mode. Anything else is CPUTime.
func ParseMode(s string) Mode {
	if s == "wall" {
		return WallTime
	}
	return CPUTime
}

func (m Mode) String() string {
	if m == WallTime {
		return "wall"
	}
	return "cpu"
}

// Timer keeps one Metric per operation name.
type Timer struct {
	mode    Mode
	clock   clock.Clock
	cpuTime func() time.Duration

	mu      sync.Mutex
	metrics map[string]*Metric
}

// NewTimer creates a timer. A nil clock uses the real clock.
func NewTimer(mode Mode, clk clock.Clock) *Timer {
	if clk == nil {
		clk = clock.New()
	}
	return &Timer{
		mode:    mode,
		clock:   clk,
		cpuTime: ThreadCPUTime,
		metrics: make(map[string]*Metric),
	}
}

// Mode returns the measurement mode.
func (t *Timer) Mode() Mode {
	return t.mode
}

// Record adds a measurement to the named metric.
func (t *Timer) Record(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.metrics[name]
	if !ok {
		m = &Metric{}
		t.metrics[name] = m
	}
	m.Add(d)
}

// Measure runs fn and records its cost under name, even when fn fails or
// panics. CPU time is per thread, so fn must not hop goroutines.
func (t *Timer) Measure(name string, fn func() error) error {
	start := t.now()
	defer func() {
		t.Record(name, t.now()-start)
	}()
	return fn()
}

func (t *Timer) now() time.Duration {
	if t.mode == WallTime {
		return time.Duration(t.clock.Now().UnixNano())
	}
	return t.cpuTime()
}

// Metric returns a copy of the named metric.
func (t *Timer) Metric(name string) Metric {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m, ok := t.metrics[name]; ok {
		return *m
	}
	return Metric{}
}

// Snapshot returns a copy of every metric.
func (t *Timer) Snapshot() map[string]Metric {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Metric, len(t.metrics))
	for name, m := range t.metrics {
		out[name] = *m
	}
	return out
}

// Reset drops every metric.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = make(map[string]*Metric)
}
