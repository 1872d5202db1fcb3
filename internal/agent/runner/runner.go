// Package runner drives one profiling cycle per scheduler tick: budget
// checks, configuration refresh, sampling, aggregation and flushing.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/agent/aggregator"
	"github.com/coral-mesh/coral-profiler/internal/agent/disabler"
	"github.com/coral-mesh/coral-profiler/internal/config"
	"github.com/coral-mesh/coral-profiler/internal/constants"
	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/scheduler"
)

// Sampler captures the stacks of the running goroutines.
type Sampler interface {
	Sample(ctx context.Context, maxDepth int) (model.Sample, error)
}

// Options configures a Runner.
type Options struct {
	Sampler    Sampler
	Aggregator *aggregator.Aggregator
	Disabler   *disabler.Disabler
	Config     *config.Store
	// InitialDelay is waited before the first cycle.
	InitialDelay time.Duration
	// WorkerName labels the sampling goroutine.
	WorkerName string
	Clock      clock.Clock
	Logger     zerolog.Logger
}

// errSampling marks a failed capture. It ends the current cycle only.
var errSampling = errors.New("failed to sample")

// Runner owns the scheduler and runs the profiling cycle on its worker.
//
// CPU overhead over the limit stops the runner without flushing; the memory
// limit is enforced by the aggregator. Collaborator failures (sampler,
// reporter setup, configuration refresh) are logged and the next cycle runs
// as scheduled.
type Runner struct {
	sampler    Sampler
	aggregator *aggregator.Aggregator
	disabler   *disabler.Disabler
	config     *config.Store
	scheduler  *scheduler.Scheduler
	logger     zerolog.Logger
	ctx        context.Context

	// Worker-owned.
	inProgress     bool
	firstExecution bool
}

// New creates a runner. Start launches it.
func New(opts Options) *Runner {
	r := &Runner{
		sampler:        opts.Sampler,
		aggregator:     opts.Aggregator,
		disabler:       opts.Disabler,
		config:         opts.Config,
		logger:         opts.Logger.With().Str("component", "runner").Logger(),
		ctx:            context.Background(),
		firstExecution: true,
	}
	r.scheduler = scheduler.New(r.profilingCommand, scheduler.Options{
		DelayProvider: r.samplingInterval,
		InitialDelay:  opts.InitialDelay,
		Name:          opts.WorkerName,
		Clock:         opts.Clock,
		Logger:        opts.Logger,
	})
	return r
}

// Start launches the sampling goroutine. It refuses to start when the
// profiler should not run, for example when the kill switch is on.
func (r *Runner) Start() bool {
	if r.disabler.ShouldStopProfiling(nil) {
		r.logger.Info().Msg("Profiler will not start")
		return false
	}
	if err := r.scheduler.Start(); err != nil {
		r.logger.Info().Err(err).Msg("Profiler will not start")
		return false
	}
	return true
}

// Stop terminates the sampling goroutine, then flushes the current profile.
// The profile belongs to the worker until it exits: when it outlives the
// termination timeout, Stop waits for it until ctx is done and skips the
// flush if it is still running by then.
func (r *Runner) Stop(ctx context.Context) {
	if !r.scheduler.Stop() {
		select {
		case <-r.scheduler.Done():
		case <-ctx.Done():
			r.logger.Warn().Err(ctx.Err()).Msg("Sampling goroutine still running, skipping final flush")
			return
		}
	}
	r.aggregator.Flush(ctx, true)
	r.inProgress = false
}

// Pause suspends sampling. Time spent paused does not count as profiled.
func (r *Runner) Pause(block bool) {
	r.scheduler.Pause(block)
	r.aggregator.Profile().Pause()
}

// Resume continues sampling.
func (r *Runner) Resume(block bool) {
	r.aggregator.Profile().Resume()
	r.scheduler.Resume(block)
}

// IsRunning reports whether the sampling goroutine is alive.
func (r *Runner) IsRunning() bool {
	return r.scheduler.IsRunning()
}

// IsPaused reports whether the sampling goroutine is alive and paused.
func (r *Runner) IsPaused() bool {
	return r.scheduler.IsPaused()
}

// Done is closed when the sampling goroutine exits.
func (r *Runner) Done() <-chan struct{} {
	return r.scheduler.Done()
}

func (r *Runner) samplingInterval() time.Duration {
	return r.config.Load().SamplingInterval()
}

func (r *Runner) reportingInterval() time.Duration {
	return r.config.Load().ReportingInterval()
}

// profilingCommand runs one cycle. Returning false stops the scheduler for
// good: budget violations and panics do that, collaborator failures do not.
func (r *Runner) profilingCommand() (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("Profiling cycle panicked, profiler will stop")
			ok = false
		}
	}()

	if r.firstExecution {
		if err := r.aggregator.Setup(r.ctx); err != nil {
			r.logger.Warn().Err(err).Msg("Reporter setup failed, retrying next cycle")
			return true
		}
		r.firstExecution = false
	}

	err := r.aggregator.Timer().Measure(constants.MetricRunProfiler, func() error {
		var err error
		ok, err = r.runProfiler()
		return err
	})
	if err != nil {
		r.logger.Error().Err(err).Msg("Profiling cycle failed, profiler will stop")
		return false
	}
	return ok
}

func (r *Runner) runProfiler() (bool, error) {
	if r.disabler.ShouldStopProfiling(r.aggregator.Profile()) {
		return false, nil
	}

	if !r.inProgress {
		r.refreshConfiguration()
	}

	// The refresh may have started a profile.
	if !r.inProgress {
		return true, nil
	}

	if r.disabler.ShouldStopSampling(r.aggregator.Profile()) {
		return false, nil
	}

	err := r.aggregator.Timer().Measure(constants.MetricSampleAndAggregate, r.sampleAndAggregate)
	if err != nil {
		switch {
		case errors.Is(err, errSampling):
			r.logger.Warn().Err(err).Msg("Skipping sample")
			return true, nil
		case errors.Is(err, aggregator.ErrOverMemoryLimit):
			r.logger.Info().Err(err).Msg("Profiler will stop")
			return false, nil
		}
		return false, err
	}

	if r.aggregator.Flush(r.ctx, false) {
		r.inProgress = false
	}
	return true, nil
}

func (r *Runner) sampleAndAggregate() error {
	var sample model.Sample
	err := r.aggregator.Timer().Measure(constants.MetricDumpAllStackTraces, func() error {
		var err error
		sample, err = r.sampler.Sample(r.ctx, r.config.Load().MaxStackDepth())
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", errSampling, err)
	}
	return r.aggregator.Add(r.ctx, sample)
}

// refreshConfiguration asks the reporter for a new configuration. On failure
// the current snapshot stays in effect.
func (r *Runner) refreshConfiguration() {
	if err := r.aggregator.RefreshConfiguration(r.ctx); err != nil {
		r.logger.Warn().Err(err).Msg("Configuration refresh failed, keeping current configuration")
	}

	r.inProgress = r.config.Load().ShouldProfile()
	if r.inProgress {
		r.scheduler.UpdateDelayProvider(r.samplingInterval)
	} else {
		// Nothing to sample: ask again after a reporting interval.
		r.scheduler.UpdateDelayProvider(r.reportingInterval)
		r.logger.Debug().Msg("Profiling disabled by configuration, waiting for next refresh")
	}
}
