// Package config holds the profiler's runtime configuration: the immutable
// agent configuration snapshot, the layered merger that produces it and the
// YAML file the binary reads at startup.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidReportingInterval is returned when the reporting interval is
// shorter than the minimum time between reports.
var ErrInvalidReportingInterval = errors.New("reporting interval is smaller than the minimum time for reporting")

// AgentConfiguration is an immutable snapshot of the values that drive the
// profiling cycle. Obtain the current one from a Store.
type AgentConfiguration struct {
	shouldProfile        bool
	samplingInterval     time.Duration
	reportingInterval    time.Duration
	minimumTimeReporting time.Duration
	maxStackDepth        int
	cpuLimitPercent      float64
}

// NewAgentConfiguration applies overrides on top of the built-in defaults.
func NewAgentConfiguration(o Overrides) (*AgentConfiguration, error) {
	c := DefaultAgentConfiguration()
	if o.ShouldProfile != nil {
		c.shouldProfile = *o.ShouldProfile
	}
	if o.SamplingInterval != nil {
		c.samplingInterval = *o.SamplingInterval
	}
	if o.ReportingInterval != nil {
		c.reportingInterval = *o.ReportingInterval
	}
	if o.MinimumTimeReporting != nil {
		c.minimumTimeReporting = *o.MinimumTimeReporting
	}
	if o.MaxStackDepth != nil {
		c.maxStackDepth = *o.MaxStackDepth
	}
	if o.CPULimitPercent != nil {
		c.cpuLimitPercent = *o.CPULimitPercent
	}

	if c.reportingInterval < c.minimumTimeReporting {
		return nil, fmt.Errorf("%w: got %s, minimum %s",
			ErrInvalidReportingInterval, c.reportingInterval, c.minimumTimeReporting)
	}
	return &c, nil
}

// ShouldProfile reports whether the backend allows sampling.
func (c *AgentConfiguration) ShouldProfile() bool { return c.shouldProfile }

// SamplingInterval is the delay between two samples.
func (c *AgentConfiguration) SamplingInterval() time.Duration { return c.samplingInterval }

// ReportingInterval is the target time between two reports.
func (c *AgentConfiguration) ReportingInterval() time.Duration { return c.reportingInterval }

// MinimumTimeReporting is the cooldown before a report may be sent.
func (c *AgentConfiguration) MinimumTimeReporting() time.Duration { return c.minimumTimeReporting }

// MaxStackDepth caps the frames kept per stack.
func (c *AgentConfiguration) MaxStackDepth() int { return c.maxStackDepth }

// CPULimitPercent is the CPU overhead ceiling, in percent.
func (c *AgentConfiguration) CPULimitPercent() float64 { return c.cpuLimitPercent }

// IsUnderMinReportingTime reports whether sinceLastReport is still within the
// reporting cooldown.
func (c *AgentConfiguration) IsUnderMinReportingTime(sinceLastReport time.Duration) bool {
	return sinceLastReport < c.minimumTimeReporting
}

// IsOverReportingInterval reports whether sinceLastReport exceeds the
// reporting interval.
func (c *AgentConfiguration) IsOverReportingInterval(sinceLastReport time.Duration) bool {
	return sinceLastReport > c.reportingInterval
}

// Overrides returns the snapshot as a fully populated override set.
func (c *AgentConfiguration) Overrides() Overrides {
	return Overrides{
		ShouldProfile:        ptr(c.shouldProfile),
		SamplingInterval:     ptr(c.samplingInterval),
		ReportingInterval:    ptr(c.reportingInterval),
		MinimumTimeReporting: ptr(c.minimumTimeReporting),
		MaxStackDepth:        ptr(c.maxStackDepth),
		CPULimitPercent:      ptr(c.cpuLimitPercent),
	}
}

func (c *AgentConfiguration) String() string {
	return fmt.Sprintf(
		"AgentConfiguration{shouldProfile=%t, samplingInterval=%s, reportingInterval=%s, "+
			"minimumTimeReporting=%s, maxStackDepth=%d, cpuLimitPercent=%.2f}",
		c.shouldProfile, c.samplingInterval, c.reportingInterval,
		c.minimumTimeReporting, c.maxStackDepth, c.cpuLimitPercent,
	)
}
