// Package agent is the entry point of the profiler: it assembles the
// sampler, aggregator, budget checks and scheduler into a Profiler that a
// host program starts, pauses and stops.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/agent/aggregator"
	"github.com/coral-mesh/coral-profiler/internal/agent/disabler"
	"github.com/coral-mesh/coral-profiler/internal/agent/runner"
	"github.com/coral-mesh/coral-profiler/internal/config"
	"github.com/coral-mesh/coral-profiler/internal/constants"
	"github.com/coral-mesh/coral-profiler/internal/metadata"
	"github.com/coral-mesh/coral-profiler/internal/metrics"
	"github.com/coral-mesh/coral-profiler/internal/reporter"
	"github.com/coral-mesh/coral-profiler/internal/reporter/encoder"
	"github.com/coral-mesh/coral-profiler/internal/reporter/file"
	"github.com/coral-mesh/coral-profiler/internal/sampler"
)

var (
	// ErrEmptyGroupName is returned by New without a profiling group name.
	ErrEmptyGroupName = errors.New("profiling group name is required")

	// ErrNotStarted is returned by Start when the profiler refused to run,
	// for example because the kill switch is on or it was stopped before.
	ErrNotStarted = errors.New("profiler did not start")

	// ErrPanic is returned when a panic was recovered inside the profiler.
	ErrPanic = errors.New("profiler panicked")
)

// WorkerNamePrefix prefixes the label of the sampling goroutine.
const WorkerNamePrefix = "coral-profiler-"

var nonWord = regexp.MustCompile(`\W`)

// Options configures a Profiler. Zero values fall back to the defaults.
type Options struct {
	// ProfilingGroupName names the profiles. Required.
	ProfilingGroupName string

	// Reporter receives the profiles. Defaults to a JSON file reporter in the
	// working directory with prefix "profile-<group>-".
	Reporter reporter.Reporter

	// Overrides are the user configuration layer. Ignored when Merger is set.
	Overrides config.Overrides
	// Merger publishes the agent configuration. Defaults to a merger over a
	// new store with Overrides as the user layer.
	Merger *config.Merger

	MemoryLimitBytes int64
	MaxGoroutines    int
	// Excluded lists goroutine labels never sampled. The profiler's own
	// worker is always excluded.
	Excluded       []string
	HostWeight     float64
	KillSwitchPath string
	TimerMode      metrics.Mode

	// InitialDelay is waited before the first cycle. Defaults to a random
	// delay in [0, sampling interval).
	InitialDelay *time.Duration

	// Sampler defaults to the runtime goroutine sampler.
	Sampler runner.Sampler
	// Metadata defaults to metadata collected from the host.
	Metadata *metadata.Metadata
	// Guard prevents two profilers sharing it from running at once.
	// Defaults to a guard private to this profiler.
	Guard *Guard

	Clock  clock.Clock
	Logger zerolog.Logger
}

// Profiler samples the goroutines of the current process and reports
// aggregated profiles. Its methods never panic into the caller.
type Profiler struct {
	groupName  string
	workerName string

	guard      *Guard
	merger     *config.Merger
	timer      *metrics.Timer
	metadata   *metadata.Metadata
	aggregator *aggregator.Aggregator
	runner     *runner.Runner
	logger     zerolog.Logger

	mu     sync.Mutex
	handle *Handle
}

// New assembles a profiler. It does not start sampling.
func New(opts Options) (*Profiler, error) {
	if opts.ProfilingGroupName == "" {
		return nil, ErrEmptyGroupName
	}

	logger := opts.Logger.With().
		Str("component", "profiler").
		Str("profiling_group", opts.ProfilingGroupName).
		Logger()

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.MemoryLimitBytes <= 0 {
		opts.MemoryLimitBytes = constants.DefaultMemoryLimitBytes
	}
	if opts.HostWeight <= 0 {
		opts.HostWeight = constants.DefaultHostWeight
	}
	if opts.KillSwitchPath == "" {
		opts.KillSwitchPath = constants.DefaultKillSwitchPath
	}
	if opts.Guard == nil {
		opts.Guard = NewGuard()
	}
	if opts.Metadata == nil {
		opts.Metadata = metadata.New(context.Background(), opts.Logger)
	}

	merger := opts.Merger
	if merger == nil {
		var err error
		merger, err = config.NewMerger(config.NewStore(nil), opts.Overrides, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build agent configuration: %w", err)
		}
	}
	store := merger.Store()

	if opts.Reporter == nil {
		r, err := file.New(file.Options{
			Dir:     ".",
			Prefix:  DefaultFilePrefix(opts.ProfilingGroupName),
			Encoder: encoder.New(encoder.Options{Metadata: opts.Metadata}),
			Clock:   opts.Clock,
			Logger:  opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		opts.Reporter = r
	}

	workerName := WorkerNamePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")

	if opts.Sampler == nil {
		opts.Sampler = sampler.New(sampler.Options{
			MaxGoroutines: opts.MaxGoroutines,
			Excluded:      append([]string{workerName}, opts.Excluded...),
			Logger:        opts.Logger,
		})
	}

	initialDelay := randomDelay(store.Load().SamplingInterval())
	if opts.InitialDelay != nil {
		initialDelay = *opts.InitialDelay
	}

	timer := metrics.NewTimer(opts.TimerMode, opts.Clock)

	agg, err := aggregator.New(opts.Reporter, aggregator.Options{
		ProfilingGroupName: opts.ProfilingGroupName,
		HostWeight:         opts.HostWeight,
		MemoryLimitBytes:   opts.MemoryLimitBytes,
		Timer:              timer,
		Config:             store,
		Clock:              opts.Clock,
		CPUTime:            metrics.ProcessCPUTime,
		Logger:             opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregator: %w", err)
	}

	dis := disabler.New(disabler.Options{
		KillSwitchPath:   opts.KillSwitchPath,
		MemoryLimitBytes: opts.MemoryLimitBytes,
		Timer:            timer,
		Config:           store,
		Clock:            opts.Clock,
		Logger:           opts.Logger,
	})

	run := runner.New(runner.Options{
		Sampler:      opts.Sampler,
		Aggregator:   agg,
		Disabler:     dis,
		Config:       store,
		InitialDelay: initialDelay,
		WorkerName:   workerName,
		Clock:        opts.Clock,
		Logger:       opts.Logger,
	})

	return &Profiler{
		groupName:  opts.ProfilingGroupName,
		workerName: workerName,
		guard:      opts.Guard,
		merger:     merger,
		timer:      timer,
		metadata:   opts.Metadata,
		aggregator: agg,
		runner:     run,
		logger:     logger,
	}, nil
}

// DefaultFilePrefix returns the file prefix of the default reporter: the
// group name stripped of non-word characters.
func DefaultFilePrefix(groupName string) string {
	return constants.DefaultFilePrefix + nonWord.ReplaceAllString(groupName, "") + "-"
}

func randomDelay(upper time.Duration) time.Duration {
	if upper <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(upper)))
}

// Start starts sampling, or resumes it when the profiler is running but
// paused. With block set, it returns once the worker acknowledged a resume.
func (p *Profiler) Start(block bool) (h *Handle, err error) {
	defer p.recoverPanic("start", func() { h, err = nil, ErrPanic })

	if p.runner.IsRunning() {
		p.logger.Debug().Msg("Resuming profiler")
		p.runner.Resume(block)
		return p.currentHandle(), nil
	}

	p.logger.Debug().Msg("Attempting to start the profiler")
	err = p.guard.acquire(p, func() error {
		p.logger.Info().Str("worker", p.workerName).Msg("Starting profiler")
		if !p.runner.Start() {
			return ErrNotStarted
		}
		return nil
	})
	if err != nil {
		p.logger.Info().Err(err).Msg("Profiler failed to start")
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.handle = &Handle{profiler: p}
	return p.handle, nil
}

// Pause suspends sampling until Start is called again. It returns false when
// the profiler is not running.
func (p *Profiler) Pause(block bool) (ok bool) {
	defer p.recoverPanic("pause", func() { ok = false })

	if !p.runner.IsRunning() {
		return false
	}
	p.logger.Debug().Msg("Pausing profiler")
	p.runner.Pause(block)
	return true
}

// Stop terminates sampling and flushes the current profile. Stopping a
// profiler that is not active is a successful no-op.
func (p *Profiler) Stop(ctx context.Context) (ok bool) {
	defer p.recoverPanic("stop", func() { ok = false })

	p.guard.release(p, func() {
		p.logger.Info().Msg("Stopping profiler")
		p.runner.Stop(ctx)
	})

	p.mu.Lock()
	p.handle = nil
	p.mu.Unlock()
	return true
}

// IsRunning reports whether the sampling goroutine is alive.
func (p *Profiler) IsRunning() (ok bool) {
	defer p.recoverPanic("is_running", func() { ok = false })
	return p.runner.IsRunning()
}

// IsPaused reports whether the profiler is running but paused.
func (p *Profiler) IsPaused() bool {
	return p.runner.IsPaused()
}

// Done is closed when the sampling goroutine exits.
func (p *Profiler) Done() <-chan struct{} {
	return p.runner.Done()
}

// ProfilingGroupName returns the group the profiles are reported under.
func (p *Profiler) ProfilingGroupName() string {
	return p.groupName
}

// WorkerName returns the label of the sampling goroutine.
func (p *Profiler) WorkerName() string {
	return p.workerName
}

// Timer returns the overhead timer.
func (p *Profiler) Timer() *metrics.Timer {
	return p.timer
}

// Merger returns the configuration merger, through which orchestration
// responses are applied.
func (p *Profiler) Merger() *config.Merger {
	return p.merger
}

// Metadata returns the agent metadata.
func (p *Profiler) Metadata() *metadata.Metadata {
	return p.metadata
}

func (p *Profiler) currentHandle() *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		p.handle = &Handle{profiler: p}
	}
	return p.handle
}

func (p *Profiler) recoverPanic(op string, onPanic func()) {
	if rec := recover(); rec != nil {
		p.logger.Error().
			Str("operation", op).
			Interface("panic", rec).
			Msg("Recovered from profiler panic")
		onPanic()
	}
}

func (p *Profiler) String() string {
	return fmt.Sprintf("Profiler(profiling_group_name=%s, worker=%s)", p.groupName, p.workerName)
}
