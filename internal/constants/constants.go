// Package constants defines shared configuration constants.
package constants

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".coral-profiler"

	// DefaultStorePath is the DuckDB file used by the store reporter.
	DefaultStorePath = DefaultDir + "/" + "profiles.duckdb"

	// DefaultKillSwitchPath stops the profiler when a file exists at this path.
	DefaultKillSwitchPath = "/var/tmp/killProfiler"

	DefaultFilePrefix = "profile-"

	// EnvPrefix prefixes every environment variable read by the agent.
	EnvPrefix = "CORAL_PROFILER_"
)

// GoroutineLabel is the pprof label key carrying the name of agent goroutines.
// The sampler excludes goroutines whose label value is in its excluded set.
const GoroutineLabel = "coral.goroutine"
