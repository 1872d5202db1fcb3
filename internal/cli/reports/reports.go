// Package reports implements the 'coral-profiler reports' commands, which
// query the DuckDB profile store written by 'coral-profiler run'.
package reports

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/coral-profiler/internal/cli/helpers"
	"github.com/coral-mesh/coral-profiler/internal/constants"
	"github.com/coral-mesh/coral-profiler/internal/reporter/store"
)

// NewReportsCmd creates the reports command and its subcommands.
func NewReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Query stored profiles",
		Long: `Query the profiles saved in the DuckDB profile store.

The store is selected with --db, then reporting.store_path from the
configuration, then ` + constants.DefaultStorePath + `.`,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newTopCmd())
	cmd.AddCommand(newStacksCmd())

	return cmd
}

// openStore opens the store selected by --db or the configuration. A missing
// file is an error rather than an empty store.
func openStore(cmd *cobra.Command, dbPath string) (*store.Store, zerolog.Logger, error) {
	cfg, err := helpers.LoadConfig(cmd)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := helpers.NewLogger(cfg)

	if !cmd.Flags().Changed("db") && cfg.Reporting.StorePath != "" {
		dbPath = cfg.Reporting.StorePath
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, logger, fmt.Errorf("no profile store at %s: %w", dbPath, err)
	}

	st := store.New(store.Options{Path: dbPath, Logger: logger})
	if err := st.Setup(cmd.Context()); err != nil {
		return nil, logger, err
	}
	return st, logger, nil
}

func closeStore(st *store.Store, logger zerolog.Logger) {
	if err := st.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close profile store")
	}
}

// profileRow is one line of 'reports list'.
type profileRow struct {
	ID          string    `header:"PROFILE" json:"profile_id" yaml:"profile_id"`
	Group       string    `header:"GROUP" json:"profiling_group" yaml:"profiling_group"`
	Start       time.Time `header:"START" json:"start" yaml:"start"`
	Duration    string    `header:"DURATION" json:"duration" yaml:"duration"`
	Samples     int64     `header:"SAMPLES" json:"samples" yaml:"samples"`
	Threads     float64   `header:"AVG THREADS" json:"avg_threads" yaml:"avg_threads"`
	MemoryMB    float64   `header:"MEMORY MB" json:"memory_mb" yaml:"memory_mb"`
	OverheadMs  float64   `header:"OVERHEAD MS" json:"overhead_ms" yaml:"overhead_ms"`
	CPUSeconds  float64   `json:"cpu_time_seconds" yaml:"cpu_time_seconds"`
	AgentID     string    `json:"agent_id" yaml:"agent_id"`
	End         time.Time `json:"end" yaml:"end"`
	MemoryBytes int64     `json:"memory_usage_bytes" yaml:"memory_usage_bytes"`
}

func newProfileRow(p store.ProfileSummary) profileRow {
	var threads float64
	if p.SampleCount > 0 {
		threads = float64(p.SeenThreadCount) / float64(p.SampleCount)
	}
	return profileRow{
		ID:          p.ID,
		Group:       p.ProfilingGroup,
		Start:       p.Start,
		Duration:    (time.Duration(p.DurationMs) * time.Millisecond).String(),
		Samples:     p.SampleCount,
		Threads:     threads,
		MemoryMB:    float64(p.MemoryUsageBytes) / (1024 * 1024),
		OverheadMs:  p.OverheadMs,
		CPUSeconds:  p.CPUTimeSeconds,
		AgentID:     p.AgentID,
		End:         p.End,
		MemoryBytes: p.MemoryUsageBytes,
	}
}

var listFormats = []helpers.OutputFormat{helpers.FormatTable, helpers.FormatJSON, helpers.FormatCSV, helpers.FormatYAML}

func newListCmd() *cobra.Command {
	var (
		format    string
		dbPath    string
		group     string
		limit     int
		timeFlags helpers.TimeFlags
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored profiles, newest first",
		Example: `  coral-profiler reports list
  coral-profiler reports list --group checkout --since 1h -o json
  coral-profiler reports list --from 2024-06-01 --to 2024-06-02 -o csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, listFormats); err != nil {
				return err
			}
			tr, err := timeFlags.Parse(time.Now())
			if err != nil {
				return err
			}

			st, logger, err := openStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer closeStore(st, logger)

			return runList(cmd.Context(), st, store.ProfileFilter{
				ProfilingGroup: group,
				Since:          tr.Start,
				Until:          tr.End,
				Limit:          limit,
			}, helpers.OutputFormat(format), cmd.OutOrStdout())
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, listFormats)
	helpers.AddDatabaseFlag(cmd, &dbPath, constants.DefaultStorePath)
	timeFlags.AddFlags(cmd.Flags())
	cmd.Flags().StringVar(&group, "group", "", "Only profiles of this profiling group")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of profiles (0 for all)")

	return cmd
}

func runList(ctx context.Context, st *store.Store, filter store.ProfileFilter, format helpers.OutputFormat, w io.Writer) error {
	profiles, err := st.ListProfiles(ctx, filter)
	if err != nil {
		return err
	}

	if len(profiles) == 0 && format == helpers.FormatTable {
		fmt.Fprintln(w, "No profiles found.")
		return nil
	}

	rows := make([]profileRow, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, newProfileRow(p))
	}

	formatter, err := helpers.NewFormatter(format)
	if err != nil {
		return err
	}
	return formatter.Format(rows, w)
}

// frameRow is one line of 'reports top'.
type frameRow struct {
	Frame   string  `header:"FRAME" json:"frame" yaml:"frame"`
	Samples int64   `header:"SAMPLES" json:"samples" yaml:"samples"`
	Percent float64 `header:"%" json:"percent" yaml:"percent"`
}

func newTopCmd() *cobra.Command {
	var (
		format string
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "top <profile-id>",
		Short: "Show the frames with the most self samples in a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, listFormats); err != nil {
				return err
			}
			st, logger, err := openStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer closeStore(st, logger)

			return runTop(cmd.Context(), st, args[0], limit, helpers.OutputFormat(format), cmd.OutOrStdout())
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, listFormats)
	helpers.AddDatabaseFlag(cmd, &dbPath, constants.DefaultStorePath)
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of frames")

	return cmd
}

func runTop(ctx context.Context, st *store.Store, profileID string, limit int, format helpers.OutputFormat, w io.Writer) error {
	frames, err := st.TopFrames(ctx, profileID, limit)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return fmt.Errorf("profile %s not found or empty", profileID)
	}

	all, err := st.TopFrames(ctx, profileID, 0)
	if err != nil {
		return err
	}
	var total int64
	for _, f := range all {
		total += f.Samples
	}

	rows := make([]frameRow, 0, len(frames))
	for _, f := range frames {
		rows = append(rows, frameRow{
			Frame:   f.Frame,
			Samples: f.Samples,
			Percent: 100 * float64(f.Samples) / float64(total),
		})
	}

	formatter, err := helpers.NewFormatter(format)
	if err != nil {
		return err
	}
	return formatter.Format(rows, w)
}

func newStacksCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "stacks <profile-id>",
		Short: "Print a profile as folded stacks",
		Long: `Print every stack of a profile in the folded format ("a;b;c count"),
which flame graph tools accept as input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, logger, err := openStore(cmd, dbPath)
			if err != nil {
				return err
			}
			defer closeStore(st, logger)

			return runStacks(cmd.Context(), st, args[0], cmd.OutOrStdout())
		},
	}

	helpers.AddDatabaseFlag(cmd, &dbPath, constants.DefaultStorePath)

	return cmd
}

func runStacks(ctx context.Context, st *store.Store, profileID string, w io.Writer) error {
	stacks, err := st.Stacks(ctx, profileID)
	if err != nil {
		return err
	}
	if len(stacks) == 0 {
		return fmt.Errorf("profile %s not found or empty", profileID)
	}

	folded := make([]string, 0, len(stacks))
	for stack := range stacks {
		folded = append(folded, stack)
	}
	sort.Strings(folded)

	for _, stack := range folded {
		if _, err := fmt.Fprintf(w, "%s %d\n", stack, stacks[stack]); err != nil {
			return err
		}
	}
	return nil
}
