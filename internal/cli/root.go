// Package cli wires the coral-profiler commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-profiler/internal/cli/config"
	"github.com/coral-mesh/coral-profiler/internal/cli/helpers"
	"github.com/coral-mesh/coral-profiler/internal/cli/reports"
	"github.com/coral-mesh/coral-profiler/internal/cli/run"
	"github.com/coral-mesh/coral-profiler/pkg/version"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coral-profiler",
		Short: "Coral Profiler - continuous in-process CPU profiling",
		Long: `Sample every goroutine of a running Go process at a fixed interval and
aggregate the stacks into a call graph, reported periodically as JSON,
pprof, or rows in a local DuckDB store.

The profiler stays within a CPU and memory budget and shuts itself down
when the budget is exceeded or the kill switch file exists.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	helpers.AddGlobalFlags(root.PersistentFlags())

	root.AddCommand(run.NewRunCmd())
	root.AddCommand(config.NewConfigCmd())
	root.AddCommand(reports.NewReportsCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Coral Profiler version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
