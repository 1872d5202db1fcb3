// Package constants defines shared configuration constants and defaults.
package constants

import "time"

// Intervals - Default interval values.
const (
	// DefaultSamplingInterval is the delay between two samples.
	DefaultSamplingInterval = 1 * time.Second

	// DefaultReportingInterval is the delay between two profile reports.
	DefaultReportingInterval = 5 * time.Minute

	// DefaultMinimumTimeReporting is the minimum delay between two report attempts.
	DefaultMinimumTimeReporting = 30 * time.Second

	// DefaultKillSwitchCheckInterval bounds how often the kill switch file is probed.
	DefaultKillSwitchCheckInterval = 60 * time.Second
)

// Timeouts - Default timeout values.
const (
	// DefaultTerminationTimeout is how long Stop waits for the sampling goroutine.
	DefaultTerminationTimeout = 2 * time.Second

	// DefaultReportTimeout bounds a single report call.
	DefaultReportTimeout = 30 * time.Second
)

// Limits - Default budget values.
const (
	// DefaultMaxStackDepth truncates deeper stacks.
	DefaultMaxStackDepth = 1000

	// DefaultCPULimitPercent is the share of a sampling interval the agent may spend.
	DefaultCPULimitPercent = 10.0

	// DefaultMemoryLimitBytes caps the estimated size of a profile.
	DefaultMemoryLimitBytes = 10 * 1024 * 1024

	// DefaultMaxThreads caps how many goroutines are captured per sample.
	DefaultMaxThreads = 100

	// DefaultHostWeight rescales a host's profile against the fleet.
	DefaultHostWeight = 1.0

	// MinimumMeasuresInDurationMetrics is the number of timings needed before
	// CPU usage checks are trusted.
	MinimumMeasuresInDurationMetrics = 20

	// MinimumSamplesInProfile is the number of samples needed before the
	// measured sampling interval replaces the configured one.
	MinimumSamplesInProfile = 5
)

// Metric names recorded by the agent timer.
const (
	MetricRunProfiler          = "runProfiler"
	MetricSampleAndAggregate   = "sampleAndAggregate"
	MetricAggregateThreadDumps = "aggregateThreadDumps"
	MetricDumpAllStackTraces   = "dumpAllStackTraces"
	MetricFlush                = "flush"
)
