// Package config implements the 'coral-profiler config' command family.
package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-profiler/internal/cli/helpers"
	"github.com/coral-mesh/coral-profiler/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the profiler configuration",
		Long: `Inspect the profiler configuration.

Configuration Priority:
  1. Command flags (highest)
  2. CORAL_PROFILER_* environment variables
  3. Configuration file (--config, default ~/.coral-profiler/config.yaml)
  4. Built-in defaults`,
	}

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newValidateCmd())

	return cmd
}

// effective is the resolved configuration printed by 'config show'.
type effective struct {
	File  *config.File `json:"file" yaml:"file"`
	Agent agentView    `json:"agent" yaml:"agent"`
}

// agentView renders an AgentConfiguration snapshot.
type agentView struct {
	ShouldProfile        bool    `json:"should_profile" yaml:"should_profile"`
	SamplingInterval     string  `json:"sampling_interval" yaml:"sampling_interval"`
	ReportingInterval    string  `json:"reporting_interval" yaml:"reporting_interval"`
	MinimumTimeReporting string  `json:"minimum_time_reporting" yaml:"minimum_time_reporting"`
	MaxStackDepth        int     `json:"max_stack_depth" yaml:"max_stack_depth"`
	CPULimitPercent      float64 `json:"cpu_limit_percent" yaml:"cpu_limit_percent"`
}

func newAgentView(c *config.AgentConfiguration) agentView {
	return agentView{
		ShouldProfile:        c.ShouldProfile(),
		SamplingInterval:     c.SamplingInterval().String(),
		ReportingInterval:    c.ReportingInterval().String(),
		MinimumTimeReporting: c.MinimumTimeReporting().String(),
		MaxStackDepth:        c.MaxStackDepth(),
		CPULimitPercent:      c.CPULimitPercent(),
	}
}

func newShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration after the file, the environment and the
defaults are merged, followed by the agent configuration the profiler
starts with.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, showFormats); err != nil {
				return err
			}
			cfg, err := helpers.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return runShow(cfg, helpers.OutputFormat(format), cmd.OutOrStdout())
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatYAML, showFormats)

	return cmd
}

var showFormats = []helpers.OutputFormat{helpers.FormatYAML, helpers.FormatJSON}

func runShow(cfg *config.File, format helpers.OutputFormat, w io.Writer) error {
	agentCfg, err := config.NewAgentConfiguration(cfg.UserOverrides())
	if err != nil {
		return fmt.Errorf("failed to resolve agent configuration: %w", err)
	}

	formatter, err := helpers.NewFormatter(format)
	if err != nil {
		return err
	}
	return formatter.Format(effective{File: cfg, Agent: newAgentView(agentCfg)}, w)
}

func newValidateCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Validate the merged configuration and report every invalid field.

Checks:
- Required fields (profiling_group_name)
- Positive intervals, limits and weights
- Reporting interval not below the minimum reporting time
- Known timer mode and log level`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, validateFormats); err != nil {
				return err
			}
			cfg, err := helpers.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return runValidate(cfg, helpers.OutputFormat(format), cmd.OutOrStdout())
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, validateFormats)

	return cmd
}

var validateFormats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON}

// ErrInvalidConfig is returned by 'config validate' when a field is invalid.
var ErrInvalidConfig = errors.New("configuration is invalid")

type problem struct {
	Field   string `header:"FIELD" json:"field"`
	Message string `header:"PROBLEM" json:"message"`
}

func runValidate(cfg *config.File, format helpers.OutputFormat, w io.Writer) error {
	var problems []problem

	err := cfg.Validate()
	var multi *config.MultiValidationError
	switch {
	case err == nil:
	case errors.As(err, &multi):
		for _, e := range multi.Errors {
			problems = append(problems, problem{Field: e.Field, Message: e.Message})
		}
	default:
		problems = append(problems, problem{Message: err.Error()})
	}

	if format == helpers.FormatJSON {
		out := struct {
			Valid     bool      `json:"valid"`
			CheckedAt time.Time `json:"checked_at"`
			Problems  []problem `json:"problems"`
		}{Valid: len(problems) == 0, CheckedAt: time.Now().UTC(), Problems: problems}
		if err := (&helpers.JSONFormatter{}).Format(out, w); err != nil {
			return err
		}
	} else if len(problems) == 0 {
		fmt.Fprintln(w, "Configuration is valid.")
	} else if err := (&helpers.TableFormatter{}).Format(problems, w); err != nil {
		return err
	}

	if len(problems) > 0 {
		return ErrInvalidConfig
	}
	return nil
}
