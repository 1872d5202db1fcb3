// Package aggregator merges samples into the current profile and decides
// when the profile is reported.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/config"
	"github.com/coral-mesh/coral-profiler/internal/constants"
	"github.com/coral-mesh/coral-profiler/internal/metrics"
	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/reporter"
)

// ErrOverMemoryLimit is returned by Add when the profile is over its memory
// limit and the reporting cooldown forbids flushing it.
var ErrOverMemoryLimit = errors.New("profiler memory usage limit has been reached")

// Options configures an Aggregator.
type Options struct {
	ProfilingGroupName string
	HostWeight         float64
	MemoryLimitBytes   int64
	Timer              *metrics.Timer
	Config             *config.Store
	Clock              clock.Clock
	// CPUTime is the process CPU time source recorded in each profile.
	CPUTime func() time.Duration
	// ReportTimeout bounds a single report. Defaults to DefaultReportTimeout.
	ReportTimeout time.Duration
	Logger        zerolog.Logger
}

// Aggregator owns the current profile. Add, Flush and Reset are called from
// the sampling goroutine only; Profile may be read from any goroutine.
type Aggregator struct {
	reporter reporter.Reporter
	opts     Options
	logger   zerolog.Logger

	profile             atomic.Pointer[model.Profile]
	lastReportAttempted time.Time
}

// New creates an aggregator with an empty profile.
func New(r reporter.Reporter, opts Options) (*Aggregator, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Timer == nil {
		opts.Timer = metrics.NewTimer(metrics.CPUTime, opts.Clock)
	}
	if opts.Config == nil {
		opts.Config = config.NewStore(nil)
	}
	if opts.HostWeight == 0 {
		opts.HostWeight = constants.DefaultHostWeight
	}
	if opts.ReportTimeout == 0 {
		opts.ReportTimeout = constants.DefaultReportTimeout
	}

	a := &Aggregator{
		reporter:            r,
		opts:                opts,
		logger:              opts.Logger.With().Str("component", "aggregator").Logger(),
		lastReportAttempted: opts.Clock.Now(),
	}
	if err := a.Reset(); err != nil {
		return nil, err
	}
	return a, nil
}

// Profile returns the profile currently being aggregated.
func (a *Aggregator) Profile() *model.Profile {
	return a.profile.Load()
}

// Timer returns the timer measuring the aggregator.
func (a *Aggregator) Timer() *metrics.Timer {
	return a.opts.Timer
}

// Setup prepares the reporter.
func (a *Aggregator) Setup(ctx context.Context) error {
	if err := a.reporter.Setup(ctx); err != nil {
		return fmt.Errorf("failed to set up reporter: %w", err)
	}
	return nil
}

// RefreshConfiguration asks the reporter for a new configuration.
func (a *Aggregator) RefreshConfiguration(ctx context.Context) error {
	if err := a.reporter.RefreshConfiguration(ctx); err != nil {
		return fmt.Errorf("failed to refresh configuration: %w", err)
	}
	return nil
}

// Add merges a sample into the profile, then enforces the memory limit: an
// oversized profile is flushed, or ErrOverMemoryLimit is returned when the
// reporting cooldown forbids it.
func (a *Aggregator) Add(ctx context.Context, sample model.Sample) error {
	err := a.opts.Timer.Measure(constants.MetricAggregateThreadDumps, func() error {
		return a.Profile().Add(sample)
	})
	if err != nil {
		return fmt.Errorf("failed to aggregate sample: %w", err)
	}
	return a.checkMemoryLimit(ctx)
}

func (a *Aggregator) checkMemoryLimit(ctx context.Context) error {
	usage := a.Profile().MemoryUsageBytes()
	if usage <= a.opts.MemoryLimitBytes {
		return nil
	}
	if a.isUnderMinReportingTime(a.opts.Clock.Now()) {
		return fmt.Errorf("%w: %d bytes used, limit %d", ErrOverMemoryLimit, usage, a.opts.MemoryLimitBytes)
	}

	a.logger.Info().
		Int64("usage_bytes", usage).
		Int64("limit_bytes", a.opts.MemoryLimitBytes).
		Msg("Profile over memory limit, flushing")
	a.Flush(ctx, true)
	return nil
}

// Flush reports the profile when the reporting interval has elapsed or when
// force is set. Within the reporting cooldown the profile is dropped instead.
// It returns true when a report was attempted; the outcome of the report
// does not matter, a failed report is logged and its data dropped.
func (a *Aggregator) Flush(ctx context.Context, force bool) bool {
	var reported bool
	_ = a.opts.Timer.Measure(constants.MetricFlush, func() error {
		reported = a.flush(ctx, force)
		return nil
	})
	return reported
}

func (a *Aggregator) flush(ctx context.Context, force bool) bool {
	now := a.opts.Clock.Now()
	if !force && !a.isOverReportingInterval(now) {
		return false
	}

	reported := false
	if a.isUnderMinReportingTime(now) {
		a.logger.Info().Msg("Dropping the profile as it is under the minimum reporting time")
	} else {
		a.report(ctx, now)
		reported = true
	}

	if force || reported {
		if err := a.Reset(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to reset profile")
		}
	}
	return reported
}

func (a *Aggregator) report(ctx context.Context, now time.Time) {
	a.lastReportAttempted = now
	p := a.Profile()

	p.SetOverhead(a.opts.Timer.Metric(constants.MetricRunProfiler).Total)
	if err := p.SetEnd(now.UnixMilli()); err != nil {
		a.logger.Debug().Err(err).Msg("Keeping previous profile end")
	}

	a.logger.Info().Stringer("profile", p).Msg("Attempting to report profile data")
	if p.IsEmpty() {
		a.logger.Info().Msg("Report was cancelled because it was empty")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.ReportTimeout)
	defer cancel()
	if err := a.reporter.Report(ctx, p); err != nil {
		a.logger.Warn().Err(err).Msg("Failed to report profile")
		return
	}
	a.logger.Info().Msg("Reported profile successfully")
}

// Reset starts a new empty profile and clears the timer.
func (a *Aggregator) Reset() error {
	p, err := model.NewProfile(model.ProfileOptions{
		ProfilingGroupName: a.opts.ProfilingGroupName,
		SamplingInterval:   a.opts.Config.Load().SamplingInterval(),
		HostWeight:         a.opts.HostWeight,
		Start:              a.opts.Clock.Now().UnixMilli(),
		Clock:              a.opts.Clock,
		CPUTime:            a.opts.CPUTime,
	})
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	a.profile.Store(p)
	a.opts.Timer.Reset()
	return nil
}

func (a *Aggregator) isUnderMinReportingTime(now time.Time) bool {
	return a.opts.Config.Load().IsUnderMinReportingTime(now.Sub(a.lastReportAttempted))
}

func (a *Aggregator) isOverReportingInterval(now time.Time) bool {
	return a.opts.Config.Load().IsOverReportingInterval(now.Sub(a.lastReportAttempted))
}
