package helpers

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/coral-mesh/coral-profiler/internal/config"
	"github.com/coral-mesh/coral-profiler/internal/logging"
)

// Persistent flag names shared by every command.
const (
	ConfigFlag    = "config"
	LogLevelFlag  = "log-level"
	LogPrettyFlag = "log-pretty"
)

// AddGlobalFlags registers the persistent flags on the root command.
func AddGlobalFlags(flags *pflag.FlagSet) {
	flags.String(ConfigFlag, config.DefaultPath(), "Path of the YAML configuration file")
	flags.String(LogLevelFlag, "", "Log level (trace, debug, info, warn, error); overrides the configuration")
	flags.Bool(LogPrettyFlag, true, "Human-readable log output")
}

// LoadConfig reads the configuration file named by --config and applies the
// logging flags the user set explicitly.
func LoadConfig(cmd *cobra.Command) (*config.File, error) {
	path, err := cmd.Flags().GetString(ConfigFlag)
	if err != nil {
		return nil, fmt.Errorf("failed to read --%s: %w", ConfigFlag, err)
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup(LogLevelFlag); f != nil && f.Changed {
		cfg.Logging.Level = f.Value.String()
	}
	if f := cmd.Flags().Lookup(LogPrettyFlag); f != nil && f.Changed {
		cfg.Logging.Pretty = f.Value.String() == "true"
	}
	return cfg, nil
}

// NewLogger builds the command logger from the logging section of cfg.
func NewLogger(cfg *config.File) zerolog.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
}
