package metrics

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every exported metric.
const Namespace = "coral_profiler"

// Collector exports the metrics of a Timer. Values describe the current
// profile and drop back to zero when the timer is reset, so they are gauges.
type Collector struct {
	timer *Timer

	count   *prometheus.Desc
	total   *prometheus.Desc
	max     *prometheus.Desc
	average *prometheus.Desc
}

// NewCollector creates a collector for timer.
func NewCollector(timer *Timer) *Collector {
	labels := []string{"operation", "mode"}
	return &Collector{
		timer: timer,
		count: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "operation", "measurements"),
			"Number of measurements recorded for the current profile.",
			labels, nil,
		),
		total: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "operation", "seconds_total"),
			"Time spent in the operation for the current profile.",
			labels, nil,
		),
		max: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "operation", "max_seconds"),
			"Longest single measurement for the current profile.",
			labels, nil,
		),
		average: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "operation", "average_seconds"),
			"Average measurement for the current profile.",
			labels, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.count
	ch <- c.total
	ch <- c.max
	ch <- c.average
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.timer.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		names = append(names, name)
	}
	sort.Strings(names)

	mode := c.timer.Mode().String()
	for _, name := range names {
		m := snapshot[name]
		ch <- prometheus.MustNewConstMetric(c.count, prometheus.GaugeValue, float64(m.Counter), name, mode)
		ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, m.Total.Seconds(), name, mode)
		ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, m.Max.Seconds(), name, mode)
		ch <- prometheus.MustNewConstMetric(c.average, prometheus.GaugeValue, m.Average().Seconds(), name, mode)
	}
}
