package disabler

import (
	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/config"
	"github.com/coral-mesh/coral-profiler/internal/metrics"
	"github.com/coral-mesh/coral-profiler/internal/model"
)

// Options configures a Disabler.
type Options struct {
	KillSwitchPath   string
	MemoryLimitBytes int64
	Timer            *metrics.Timer
	Config           *config.Store
	Clock            clock.Clock
	Logger           zerolog.Logger
}

// Disabler combines every check that can switch the profiler off.
type Disabler struct {
	killSwitch       *KillSwitch
	cpuUsage         *CPUUsageCheck
	memoryLimitBytes int64
	logger           zerolog.Logger
}

// New creates a disabler.
func New(opts Options) *Disabler {
	logger := opts.Logger.With().Str("component", "disabler").Logger()
	return &Disabler{
		killSwitch:       NewKillSwitch(opts.KillSwitchPath, opts.Clock, logger),
		cpuUsage:         NewCPUUsageCheck(opts.Timer, opts.Config, logger),
		memoryLimitBytes: opts.MemoryLimitBytes,
		logger:           logger,
	}
}

// KillSwitch returns the kill switch the disabler consults.
func (d *Disabler) KillSwitch() *KillSwitch {
	return d.killSwitch
}

// ShouldStopSampling is checked before every sample.
func (d *Disabler) ShouldStopSampling(p *model.Profile) bool {
	return d.killSwitch.IsOn() ||
		d.cpuUsage.IsSamplingLimitReached(p) ||
		d.IsMemoryLimitReached(p)
}

// ShouldStopProfiling is checked at the start of every cycle.
func (d *Disabler) ShouldStopProfiling(p *model.Profile) bool {
	return d.killSwitch.IsOn() ||
		d.cpuUsage.IsOverallLimitReached(p) ||
		d.IsMemoryLimitReached(p)
}

// IsMemoryLimitReached reports whether the profile outgrew the memory limit.
func (d *Disabler) IsMemoryLimitReached(p *model.Profile) bool {
	if p == nil || p.MemoryUsageBytes() <= d.memoryLimitBytes {
		return false
	}
	d.logger.Info().
		Int64("usage_bytes", p.MemoryUsageBytes()).
		Int64("limit_bytes", d.memoryLimitBytes).
		Msg("Profiler memory usage limit reached")
	return true
}
