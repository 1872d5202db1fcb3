// Package run implements the 'coral-profiler run' command, which profiles
// the CLI process itself while it executes a synthetic workload.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coral-mesh/coral-profiler/internal/agent"
	"github.com/coral-mesh/coral-profiler/internal/cli/helpers"
	"github.com/coral-mesh/coral-profiler/internal/config"
	"github.com/coral-mesh/coral-profiler/internal/constants"
	"github.com/coral-mesh/coral-profiler/internal/metadata"
	"github.com/coral-mesh/coral-profiler/internal/metrics"
	"github.com/coral-mesh/coral-profiler/internal/reporter"
	"github.com/coral-mesh/coral-profiler/internal/reporter/encoder"
	"github.com/coral-mesh/coral-profiler/internal/reporter/file"
	"github.com/coral-mesh/coral-profiler/internal/reporter/pprofreport"
	"github.com/coral-mesh/coral-profiler/internal/reporter/store"
)

// ErrNoSamples is returned when the run ended before any profile was written.
var ErrNoSamples = errors.New("no profile was reported")

type options struct {
	duration    time.Duration
	group       string
	outputDir   string
	storePath   string
	metricsAddr string
	workers     int
}

// NewRunCmd creates the 'run' command.
func NewRunCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Profile a synthetic workload in this process",
		Long: `Start the profiler inside the CLI process, run a CPU-bound synthetic
workload for the given duration, then stop the profiler, which flushes the
last profile to every configured reporter.

Reporters are taken from the configuration file and can be overridden:
  --output-dir   JSON call graph files (plus .pb.gz when reporting.pprof is set)
  --store        DuckDB profile store queried by 'coral-profiler reports'

Without any reporter the profile is written as JSON to the working directory.

Examples:
  coral-profiler run --group checkout --duration 1m --output-dir ./profiles
  coral-profiler run --group checkout --store ./profiles.duckdb --metrics-addr :9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := helpers.LoadConfig(cmd)
			if err != nil {
				return err
			}
			opts.apply(cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runProfiler(ctx, cfg, opts, helpers.NewLogger(cfg), cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&opts.duration, "duration", 30*time.Second, "How long to profile (0 runs until interrupted)")
	cmd.Flags().StringVar(&opts.group, "group", "", "Profiling group name (overrides the configuration)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory receiving JSON profiles")
	cmd.Flags().StringVar(&opts.storePath, "store", "", "DuckDB file receiving profiles")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve profiler self metrics on this address (e.g. :9464)")
	cmd.Flags().IntVar(&opts.workers, "workers", 2, "Synthetic workload goroutines (0 profiles an idle process)")

	return cmd
}

func (o options) apply(cfg *config.File) {
	if o.group != "" {
		cfg.ProfilingGroupName = o.group
	}
	if o.outputDir != "" {
		cfg.Reporting.OutputDir = o.outputDir
	}
	if o.storePath != "" {
		cfg.Reporting.StorePath = o.storePath
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
}

// reporters holds the reporters built from the configuration.
type reporters struct {
	all   []reporter.Reporter
	file  *file.Reporter
	store *store.Store
}

func (r *reporters) reporter() reporter.Reporter {
	if len(r.all) == 0 {
		return nil
	}
	return reporter.NewMulti(r.all...)
}

func (r *reporters) close(logger zerolog.Logger) {
	if r.store == nil {
		return
	}
	if err := r.store.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close profile store")
	}
}

func buildReporters(cfg *config.File, meta *metadata.Metadata, logger zerolog.Logger) (*reporters, error) {
	modules := encoder.NewModulePathExtractor(encoder.DefaultRoots())
	out := &reporters{}

	if dir := cfg.Reporting.OutputDir; dir != "" {
		prefix := cfg.Reporting.FilePrefix
		if prefix == constants.DefaultFilePrefix {
			prefix = agent.DefaultFilePrefix(cfg.ProfilingGroupName)
		}

		fr, err := file.New(file.Options{
			Dir:    dir,
			Prefix: prefix,
			Encoder: encoder.New(encoder.Options{
				Metadata: meta,
				Gzip:     cfg.Reporting.Gzip,
				Modules:  modules,
			}),
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		out.file = fr
		out.all = append(out.all, fr)

		if cfg.Reporting.Pprof {
			out.all = append(out.all, pprofreport.New(pprofreport.Options{
				Dir:    dir,
				Prefix: prefix,
				Logger: logger,
			}))
		}
	}

	if path := cfg.Reporting.StorePath; path != "" {
		out.store = store.New(store.Options{
			Path:      path,
			AgentID:   meta.Fleet.AgentID,
			Retention: cfg.Reporting.StoreRetention,
			Modules:   modules,
			Logger:    logger,
		})
		out.all = append(out.all, out.store)
	}

	return out, nil
}

func runProfiler(ctx context.Context, cfg *config.File, opts options, logger zerolog.Logger, w io.Writer) error {
	meta := metadata.New(ctx, logger)

	reps, err := buildReporters(cfg, meta, logger)
	if err != nil {
		return err
	}
	defer reps.close(logger)

	merger, err := config.NewMerger(config.NewStore(nil), cfg.UserOverrides(), logger)
	if err != nil {
		return fmt.Errorf("failed to build agent configuration: %w", err)
	}

	profiler, err := agent.New(agent.Options{
		ProfilingGroupName: cfg.ProfilingGroupName,
		Reporter:           reps.reporter(),
		Merger:             merger,
		MemoryLimitBytes:   cfg.MemoryLimitBytes(),
		MaxGoroutines:      cfg.MaxGoroutines,
		Excluded:           cfg.Excluded,
		HostWeight:         cfg.HostWeight,
		KillSwitchPath:     cfg.KillSwitch,
		TimerMode:          metrics.ParseMode(cfg.TimerMode),
		Metadata:           meta,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create profiler: %w", err)
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			metrics.NewCollector(profiler.Timer()),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		srv, err := metrics.NewServer(cfg.MetricsAddr, registry, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Serving metrics on http://%s%s\n", srv.Addr(), metrics.MetricsPath)
		g.Go(func() error { return srv.Serve(gctx) })
	}

	if opts.workers > 0 {
		g.Go(func() error { return runWorkload(gctx, opts.workers) })
	}

	started := time.Now()
	handle, err := profiler.Start(false)
	if err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("failed to start profiler: %w", err)
	}
	logger.Info().
		Str("profiling_group", cfg.ProfilingGroupName).
		Dur("duration", opts.duration).
		Msg("Profiling")

	select {
	case <-gctx.Done():
	case <-profiler.Done():
		logger.Warn().Msg("Profiler stopped on its own, see the log above")
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultReportTimeout)
	defer stopCancel()
	handle.Stop(stopCtx)

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return printSummary(ctx, w, cfg, reps, time.Since(started))
}

func printSummary(ctx context.Context, w io.Writer, cfg *config.File, reps *reporters, elapsed time.Duration) error {
	fmt.Fprintf(w, "Profiled %q for %s\n", cfg.ProfilingGroupName, elapsed.Round(time.Millisecond))

	if reps.file != nil {
		last := reps.file.LastPath()
		if last == "" {
			return ErrNoSamples
		}
		fmt.Fprintf(w, "Latest profile: %s\n", last)
	}

	if reps.store != nil {
		profiles, err := reps.store.ListProfiles(context.WithoutCancel(ctx), store.ProfileFilter{
			ProfilingGroup: cfg.ProfilingGroupName,
			Limit:          1,
		})
		if err != nil && !errors.Is(err, store.ErrNotSetup) {
			return fmt.Errorf("failed to read profile store: %w", err)
		}
		if len(profiles) == 0 {
			return ErrNoSamples
		}
		fmt.Fprintf(w, "Stored profile %s (%d samples) in %s\n",
			profiles[0].ID, profiles[0].SampleCount, cfg.Reporting.StorePath)
	}
	return nil
}
