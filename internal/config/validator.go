package config

import (
	"fmt"
	"strings"
)

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError collects every invalid field.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "validation failed with %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

// Validate checks the configuration, including the agent configuration the
// overrides would produce.
func (f *File) Validate() error {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if strings.TrimSpace(f.ProfilingGroupName) == "" {
		add("profiling_group_name", "profiling group name is required")
	}
	if f.SamplingInterval != nil && *f.SamplingInterval <= 0 {
		add("sampling_interval", "must be positive")
	}
	if f.MinimumTimeReporting != nil && *f.MinimumTimeReporting < 0 {
		add("minimum_time_reporting", "must not be negative")
	}
	if f.MaxStackDepth != nil && *f.MaxStackDepth <= 0 {
		add("max_stack_depth", "must be positive")
	}
	if f.CPULimitPercent != nil && (*f.CPULimitPercent <= 0 || *f.CPULimitPercent > 100) {
		add("cpu_limit_percent", "must be in (0, 100]")
	}
	if f.MemoryLimitMB <= 0 {
		add("memory_limit_mb", "must be positive")
	}
	if f.MaxGoroutines <= 0 {
		add("max_goroutines", "must be positive")
	}
	if f.HostWeight <= 0 {
		add("host_weight", "must be positive")
	}
	if f.Reporting.StoreRetention < 0 {
		add("reporting.store_retention", "must not be negative")
	}
	if f.TimerMode != "cpu" && f.TimerMode != "wall" {
		add("timer_mode", fmt.Sprintf("unknown mode %q (want cpu or wall)", f.TimerMode))
	}
	switch f.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", fmt.Sprintf("unknown level %q", f.Logging.Level))
	}
	if _, err := NewAgentConfiguration(f.UserOverrides()); err != nil {
		add("reporting_interval", err.Error())
	}

	if len(errs) > 0 {
		return &MultiValidationError{Errors: errs}
	}
	return nil
}
