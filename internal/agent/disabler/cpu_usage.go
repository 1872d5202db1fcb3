package disabler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/config"
	"github.com/coral-mesh/coral-profiler/internal/constants"
	"github.com/coral-mesh/coral-profiler/internal/metrics"
	"github.com/coral-mesh/coral-profiler/internal/model"
)

// CPUUsageCheck compares the measured cost of the profiler with the CPU limit
// of the current configuration. Checks need enough measurements to be
// meaningful and report false until then.
type CPUUsageCheck struct {
	timer  *metrics.Timer
	config *config.Store
	logger zerolog.Logger
}

// NewCPUUsageCheck creates a check reading measurements from timer.
func NewCPUUsageCheck(timer *metrics.Timer, store *config.Store, logger zerolog.Logger) *CPUUsageCheck {
	return &CPUUsageCheck{timer: timer, config: store, logger: logger}
}

// IsOverallLimitReached covers the whole cycle: configuration refresh,
// sampling and aggregation, and report submission.
func (c *CPUUsageCheck) IsOverallLimitReached(p *model.Profile) bool {
	m := c.timer.Metric(constants.MetricRunProfiler)
	if p == nil || m.Counter < constants.MinimumMeasuresInDurationMetrics {
		return false
	}

	active := time.Duration(p.ActiveMillisSinceStart()) * time.Millisecond
	if active <= 0 {
		return false
	}

	used := 100 * m.Total.Seconds() / active.Seconds()
	limit := c.config.Load().CPULimitPercent()
	if used < limit {
		return false
	}

	c.logger.Info().
		Float64("used_percent", used).
		Float64("limit_percent", limit).
		Dur("active", active).
		Msg("Profiler overall CPU usage limit reached, profiler will stop")
	return true
}

// IsSamplingLimitReached compares the average cost of one sample with the
// average time between samples.
func (c *CPUUsageCheck) IsSamplingLimitReached(p *model.Profile) bool {
	m := c.timer.Metric(constants.MetricSampleAndAggregate)
	if m.Counter < constants.MinimumMeasuresInDurationMetrics {
		return false
	}

	interval := c.averageSamplingInterval(p)
	if interval <= 0 {
		return false
	}

	used := 100 * m.Average().Seconds() / interval.Seconds()
	limit := c.config.Load().CPULimitPercent()
	if used < limit {
		return false
	}

	c.logger.Info().
		Float64("used_percent", used).
		Float64("limit_percent", limit).
		Dur("sampling_interval", interval).
		Msg("Profiler sampling CPU usage limit reached, profiler will stop")
	return true
}

func (c *CPUUsageCheck) averageSamplingInterval(p *model.Profile) time.Duration {
	if p == nil || p.TotalSampleCount < constants.MinimumSamplesInProfile {
		return c.config.Load().SamplingInterval()
	}
	return time.Duration(p.ActiveMillisSinceStart()/p.TotalSampleCount) * time.Millisecond
}
