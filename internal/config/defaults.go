package config

import "github.com/coral-mesh/coral-profiler/internal/constants"

// DefaultAgentConfiguration returns the built-in configuration.
func DefaultAgentConfiguration() AgentConfiguration {
	return AgentConfiguration{
		shouldProfile:        true,
		samplingInterval:     constants.DefaultSamplingInterval,
		reportingInterval:    constants.DefaultReportingInterval,
		minimumTimeReporting: constants.DefaultMinimumTimeReporting,
		maxStackDepth:        constants.DefaultMaxStackDepth,
		cpuLimitPercent:      constants.DefaultCPULimitPercent,
	}
}

// DefaultFile returns a file configuration populated with defaults for the
// fields that are not agent configuration overrides.
func DefaultFile() *File {
	return &File{
		MemoryLimitMB: float64(constants.DefaultMemoryLimitBytes) / (1024 * 1024),
		MaxGoroutines: constants.DefaultMaxThreads,
		HostWeight:    constants.DefaultHostWeight,
		TimerMode:     "cpu",
		KillSwitch:    constants.DefaultKillSwitchPath,
		Reporting: ReportingFile{
			FilePrefix: constants.DefaultFilePrefix,
			Pprof:      true,
		},
		Logging: LoggingFile{
			Level:  "info",
			Pretty: true,
		},
	}
}
