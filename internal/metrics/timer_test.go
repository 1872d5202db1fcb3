package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetric_Add(t *testing.T) {
	var m Metric
	assert.Equal(t, time.Duration(0), m.Average())

	m.Add(2 * time.Second)
	m.Add(4 * time.Second)
	m.Add(time.Second)

	assert.Equal(t, int64(3), m.Counter)
	assert.Equal(t, 7*time.Second, m.Total)
	assert.Equal(t, 4*time.Second, m.Max)
	assert.Equal(t, 7*time.Second/3, m.Average())
}

func TestTimer_MeasureWallTime(t *testing.T) {
	mock := clock.NewMock()
	timer := NewTimer(WallTime, mock)

	err := timer.Measure("flush", func() error {
		mock.Add(300 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	wantErr := errors.New("boom")
	err = timer.Measure("flush", func() error {
		mock.Add(100 * time.Millisecond)
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	m := timer.Metric("flush")
	assert.Equal(t, int64(2), m.Counter)
	assert.Equal(t, 400*time.Millisecond, m.Total)
	assert.Equal(t, 300*time.Millisecond, m.Max)
}

func TestTimer_MeasureCPUTime(t *testing.T) {
	timer := NewTimer(CPUTime, nil)
	readings := []time.Duration{time.Second, 1500 * time.Millisecond}
	timer.cpuTime = func() time.Duration {
		d := readings[0]
		readings = readings[1:]
		return d
	}

	require.NoError(t, timer.Measure("runProfiler", func() error { return nil }))
	assert.Equal(t, 500*time.Millisecond, timer.Metric("runProfiler").Total)
}

func TestTimer_RecordsOnPanic(t *testing.T) {
	timer := NewTimer(WallTime, clock.NewMock())

	assert.Panics(t, func() {
		_ = timer.Measure("sampleAndAggregate", func() error { panic("boom") })
	})
	assert.Equal(t, int64(1), timer.Metric("sampleAndAggregate").Counter)
}

func TestTimer_Reset(t *testing.T) {
	timer := NewTimer(WallTime, clock.NewMock())
	timer.Record("a", time.Second)
	timer.Record("b", time.Second)
	assert.Len(t, timer.Snapshot(), 2)

	timer.Reset()
	assert.Empty(t, timer.Snapshot())
	assert.Equal(t, Metric{}, timer.Metric("a"))
}

func TestParseMode(t *testing.T) {
	assert.Equal(t, WallTime, ParseMode("wall"))
	assert.Equal(t, CPUTime, ParseMode("cpu"))
	assert.Equal(t, CPUTime, ParseMode(""))
	assert.Equal(t, "wall", WallTime.String())
}

func TestThreadCPUTime_Monotonic(t *testing.T) {
	first := ThreadCPUTime()
	second := ThreadCPUTime()
	assert.GreaterOrEqual(t, second, first)
	assert.GreaterOrEqual(t, ProcessCPUTime(), time.Duration(0))
}

func TestCollector(t *testing.T) {
	timer := NewTimer(WallTime, clock.NewMock())
	timer.Record("flush", 2*time.Second)
	timer.Record("flush", 4*time.Second)

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(NewCollector(timer)))

	count, err := testutil.GatherAndCount(registry, "coral_profiler_operation_measurements")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := registry.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			values[family.GetName()] = metric.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 2.0, values["coral_profiler_operation_measurements"])
	assert.Equal(t, 6.0, values["coral_profiler_operation_seconds_total"])
	assert.Equal(t, 4.0, values["coral_profiler_operation_max_seconds"])
	assert.Equal(t, 3.0, values["coral_profiler_operation_average_seconds"])
}
