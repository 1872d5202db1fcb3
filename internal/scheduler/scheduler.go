package scheduler

import (
	"context"
	"errors"
	"runtime"
	"runtime/pprof"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/constants"
)

// ErrAlreadyStopped is returned by Start once the worker has terminated.
var ErrAlreadyStopped = errors.New("scheduler already stopped")

// Options configures a Scheduler.
type Options struct {
	// DelayProvider returns the delay before each execution after the first.
	DelayProvider func() time.Duration
	// InitialDelay is waited before the first execution.
	InitialDelay time.Duration
	// Name labels the worker goroutine so samplers can exclude it.
	Name   string
	Clock  clock.Clock
	Logger zerolog.Logger
}

// Scheduler executes a command repeatedly on a dedicated goroutine. The
// command returns false to stop the scheduler permanently.
type Scheduler struct {
	command func() bool
	state   *ExecutionState
	name    string
	logger  zerolog.Logger

	mu       sync.Mutex
	started  bool
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a scheduler. Start launches it.
func New(command func() bool, opts Options) *Scheduler {
	name := opts.Name
	if name == "" {
		name = "scheduler"
	}
	return &Scheduler{
		command: command,
		state:   NewExecutionState(opts.DelayProvider, opts.InitialDelay, opts.Clock),
		name:    name,
		logger:  opts.Logger.With().Str("component", "scheduler").Str("worker", name).Logger(),
		done:    make(chan struct{}),
	}
}

// Start launches the worker goroutine. Starting a running scheduler does
// nothing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsStopped() {
		return ErrAlreadyStopped
	}
	if s.started {
		select {
		case <-s.done:
			return ErrAlreadyStopped
		default:
			s.logger.Info().Msg("Scheduler already running")
			return nil
		}
	}
	s.started = true

	go s.run()
	return nil
}

func (s *Scheduler) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Scheduler) run() {
	defer s.closeDone()

	// Pin the worker so per-thread CPU time measured by the command belongs
	// to it alone.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	labels := pprof.Labels(constants.GoroutineLabel, s.name)
	pprof.Do(context.Background(), labels, func(context.Context) {
		s.logger.Debug().Msg("Scheduler worker started")

		ok := s.state.WaitForNextTickOrStop()
		for ok {
			ok = s.command() && s.state.WaitForNextTickOrStop()
		}
		s.state.SetStopped()

		s.logger.Debug().Msg("Scheduler worker finished")
	})
}

// Pause suspends execution after the current command, if any, completes.
func (s *Scheduler) Pause(block bool) {
	s.state.SignalPause(block)
}

// Resume continues execution. The delay owed before the pause is preserved.
func (s *Scheduler) Resume(block bool) {
	s.state.SignalResume(block)
}

// Stop signals the worker to stop and waits for it to finish, up to
// DefaultTerminationTimeout. It reports whether the worker has exited; a
// scheduler that never started counts as exited.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	if !s.started {
		s.state.SetStopped()
		s.closeDone()
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	s.state.SignalStop(false)

	timer := time.NewTimer(constants.DefaultTerminationTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return true
	case <-timer.C:
		s.logger.Warn().
			Dur("timeout", constants.DefaultTerminationTimeout).
			Msg("Scheduler worker did not terminate in time")
		return false
	}
}

// IsRunning reports whether the worker goroutine is alive.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// IsPaused reports whether the worker is alive and paused.
func (s *Scheduler) IsPaused() bool {
	return s.IsRunning() && s.state.IsPaused()
}

// UpdateDelayProvider replaces the delay provider from the next wait on.
func (s *Scheduler) UpdateDelayProvider(provider func() time.Duration) {
	s.state.SetDelayProvider(provider)
}

// NextDelay returns the delay owed before the next execution.
func (s *Scheduler) NextDelay() time.Duration {
	return s.state.NextDelay()
}

// Done is closed when the worker goroutine exits.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}
