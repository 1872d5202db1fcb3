package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/coral-profiler/internal/constants"
)

// File is the YAML configuration read by the binary. Every field can also be
// set through the environment variable named by its env tag.
type File struct {
	ProfilingGroupName string `yaml:"profiling_group_name" env:"CORAL_PROFILER_GROUP_NAME"`

	// Agent configuration overrides. Unset fields fall back to the
	// orchestration values, then to the defaults.
	ShouldProfile        *bool          `yaml:"should_profile,omitempty" env:"CORAL_PROFILER_SHOULD_PROFILE"`
	SamplingInterval     *time.Duration `yaml:"sampling_interval,omitempty" env:"CORAL_PROFILER_SAMPLING_INTERVAL"`
	ReportingInterval    *time.Duration `yaml:"reporting_interval,omitempty" env:"CORAL_PROFILER_REPORTING_INTERVAL"`
	MinimumTimeReporting *time.Duration `yaml:"minimum_time_reporting,omitempty" env:"CORAL_PROFILER_MINIMUM_TIME_REPORTING"`
	MaxStackDepth        *int           `yaml:"max_stack_depth,omitempty" env:"CORAL_PROFILER_MAX_STACK_DEPTH"`
	CPULimitPercent      *float64       `yaml:"cpu_limit_percent,omitempty" env:"CORAL_PROFILER_CPU_LIMIT_PERCENT"`

	MemoryLimitMB float64  `yaml:"memory_limit_mb" env:"CORAL_PROFILER_MEMORY_LIMIT_MB"`
	MaxGoroutines int      `yaml:"max_goroutines" env:"CORAL_PROFILER_MAX_GOROUTINES"`
	Excluded      []string `yaml:"excluded_goroutines,omitempty" env:"CORAL_PROFILER_EXCLUDED_GOROUTINES"`
	HostWeight    float64  `yaml:"host_weight" env:"CORAL_PROFILER_HOST_WEIGHT"`
	TimerMode     string   `yaml:"timer_mode" env:"CORAL_PROFILER_TIMER_MODE"`
	KillSwitch    string   `yaml:"kill_switch_path" env:"CORAL_PROFILER_KILL_SWITCH_PATH"`

	Reporting ReportingFile `yaml:"reporting"`
	Logging   LoggingFile   `yaml:"logging"`

	MetricsAddr string `yaml:"metrics_addr,omitempty" env:"CORAL_PROFILER_METRICS_ADDR"`
}

// ReportingFile selects where profiles go.
type ReportingFile struct {
	// OutputDir enables the JSON file reporter when set.
	OutputDir  string `yaml:"output_dir,omitempty" env:"CORAL_PROFILER_OUTPUT_DIR"`
	FilePrefix string `yaml:"file_prefix" env:"CORAL_PROFILER_FILE_PREFIX"`
	Gzip       bool   `yaml:"gzip" env:"CORAL_PROFILER_GZIP"`
	// Pprof also writes each profile as .pb.gz next to the JSON files.
	Pprof bool `yaml:"pprof" env:"CORAL_PROFILER_PPROF"`
	// StorePath enables the DuckDB store reporter when set.
	StorePath string `yaml:"store_path,omitempty" env:"CORAL_PROFILER_STORE_PATH"`
	// StoreRetention deletes stored profiles older than this. Zero keeps all.
	StoreRetention time.Duration `yaml:"store_retention,omitempty" env:"CORAL_PROFILER_STORE_RETENTION"`
}

// LoggingFile configures the logger.
type LoggingFile struct {
	Level  string `yaml:"level" env:"CORAL_PROFILER_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"CORAL_PROFILER_LOG_PRETTY"`
}

// DefaultPath returns ~/.coral-profiler/config.yaml, or a path relative to
// the working directory when there is no home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(constants.DefaultDir, constants.ConfigFile)
	}
	return filepath.Join(home, constants.DefaultDir, constants.ConfigFile)
}

// LoadFile reads the configuration at path on top of the defaults and then
// applies environment overrides. A missing file yields the defaults.
func LoadFile(path string) (*File, error) {
	cfg := DefaultFile()

	if path != "" {
		//nolint:gosec // G304: path is chosen by the operator.
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (f *File) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// UserOverrides returns the agent configuration layer the operator set.
func (f *File) UserOverrides() Overrides {
	return Overrides{
		ShouldProfile:        f.ShouldProfile,
		SamplingInterval:     f.SamplingInterval,
		ReportingInterval:    f.ReportingInterval,
		MinimumTimeReporting: f.MinimumTimeReporting,
		MaxStackDepth:        f.MaxStackDepth,
		CPULimitPercent:      f.CPULimitPercent,
	}
}

// MemoryLimitBytes converts MemoryLimitMB to bytes.
func (f *File) MemoryLimitBytes() int64 {
	return int64(f.MemoryLimitMB * 1024 * 1024)
}
