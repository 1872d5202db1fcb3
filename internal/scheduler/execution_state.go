// Package scheduler runs a periodic command on a single goroutine that can be
// paused, resumed and stopped from another goroutine.
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Phase is the execution phase of a scheduler.
type Phase int32

const (
	// Running is the initial phase: the command executes after each delay.
	Running Phase = iota
	// Paused waits for an explicit resume or stop; no timeout applies.
	Paused
	// Stopped is terminal.
	Stopped
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "RUNNING"
	case Paused:
		return "PAUSED"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// signalQueueSize bounds pending signals. Senders block when it is full.
const signalQueueSize = 16

// DefaultDelay is used when no delay provider is configured.
const DefaultDelay = time.Second

// signal is a requested phase change. at is taken from the clock by the
// sender, so a signal serviced late still accounts the delay correctly.
type signal struct {
	phase Phase
	at    time.Time
	ack   chan struct{}
}

// ExecutionState tracks the phase of a scheduler and the delay owed before
// the next execution.
//
// The controlling goroutine only sends signals. The worker goroutine is the
// only caller of WaitForNextTickOrStop and SetStopped.
type ExecutionState struct {
	clock   clock.Clock
	signals chan signal
	stopped chan struct{}
	stop    sync.Once
	phase   atomic.Int32

	providerMu    sync.RWMutex
	delayProvider func() time.Duration

	// Worker-owned.
	initialDelay  time.Duration
	alreadyWaited time.Duration
	waitStarted   time.Time

	initialDelayPending atomic.Bool
}

// NewExecutionState creates a running state. initialDelay is owed before the
// first execution only; delayProvider is consulted for every later one and
// defaults to DefaultDelay.
func NewExecutionState(delayProvider func() time.Duration, initialDelay time.Duration, clk clock.Clock) *ExecutionState {
	if delayProvider == nil {
		delayProvider = func() time.Duration { return DefaultDelay }
	}
	if clk == nil {
		clk = clock.New()
	}
	s := &ExecutionState{
		clock:         clk,
		signals:       make(chan signal, signalQueueSize),
		stopped:       make(chan struct{}),
		delayProvider: delayProvider,
		initialDelay:  initialDelay,
	}
	s.initialDelayPending.Store(true)
	return s
}

// SignalResume asks the worker to resume. With block set it returns once the
// worker applied the signal or terminated.
func (s *ExecutionState) SignalResume(block bool) {
	s.send(signal{phase: Running, at: s.clock.Now()}, block)
}

// SignalPause asks the worker to pause. With block set it returns once the
// worker applied the signal or terminated.
func (s *ExecutionState) SignalPause(block bool) {
	s.send(signal{phase: Paused, at: s.clock.Now()}, block)
}

// SignalStop asks the worker to stop. With block set it returns once the
// worker applied the signal or terminated.
func (s *ExecutionState) SignalStop(block bool) {
	s.send(signal{phase: Stopped, at: s.clock.Now()}, block)
}

func (s *ExecutionState) send(sig signal, block bool) {
	if block {
		sig.ack = make(chan struct{})
	}
	select {
	case s.signals <- sig:
	case <-s.stopped:
		return
	}
	if !block {
		return
	}
	select {
	case <-sig.ack:
	case <-s.stopped:
	}
}

// SetStopped moves to the terminal phase from the worker goroutine, for
// example when the command asked to stop. Blocked signal senders are released.
func (s *ExecutionState) SetStopped() {
	s.phase.Store(int32(Stopped))
	s.stop.Do(func() { close(s.stopped) })
}

// Phase returns the current phase.
func (s *ExecutionState) Phase() Phase {
	return Phase(s.phase.Load())
}

// IsPaused reports whether the phase is Paused.
func (s *ExecutionState) IsPaused() bool {
	return s.Phase() == Paused
}

// IsStopped reports whether the phase is Stopped.
func (s *ExecutionState) IsStopped() bool {
	return s.Phase() == Stopped
}

// SetDelayProvider replaces the delay provider. The new provider is used from
// the next computed wait on; a wait in progress keeps its deadline.
func (s *ExecutionState) SetDelayProvider(provider func() time.Duration) {
	s.providerMu.Lock()
	defer s.providerMu.Unlock()
	s.delayProvider = provider
}

// NextDelay returns the full delay owed for the next execution.
func (s *ExecutionState) NextDelay() time.Duration {
	if s.initialDelayPending.Load() {
		return s.initialDelay
	}
	s.providerMu.RLock()
	provider := s.delayProvider
	s.providerMu.RUnlock()
	return provider()
}

// WaitForNextTickOrStop blocks until it is time to execute or the state is
// stopped, handling pause and resume signals in between. Time waited before a
// pause counts toward the owed delay, so pausing never extends or shortens it.
//
// It returns true when the phase is Running at the end.
func (s *ExecutionState) WaitForNextTickOrStop() bool {
	timeToExecute := false
	for s.Phase() != Stopped && !timeToExecute {
		s.waitStarted = s.clock.Now()

		var sig signal
		var received bool
		if s.Phase() == Paused {
			sig, received = s.waitForSignal()
		} else {
			sig, received = s.waitForExecutionTime()
		}

		// No signal before the deadline means it is time to execute.
		timeToExecute = !received
		if received {
			s.apply(sig)
			if sig.ack != nil {
				close(sig.ack)
			}
		}
	}

	s.initialDelayPending.Store(false)
	s.alreadyWaited = 0
	return s.Phase() == Running
}

func (s *ExecutionState) waitForSignal() (signal, bool) {
	select {
	case sig := <-s.signals:
		return sig, true
	case <-s.stopped:
		return signal{}, false
	}
}

func (s *ExecutionState) waitForExecutionTime() (signal, bool) {
	delay := s.NextDelay()
	if delay <= 0 {
		return signal{}, false
	}

	remaining := delay - s.alreadyWaited
	if remaining <= 0 {
		select {
		case sig := <-s.signals:
			return sig, true
		default:
			return signal{}, false
		}
	}

	timer := s.clock.Timer(remaining)
	defer timer.Stop()

	select {
	case sig := <-s.signals:
		return sig, true
	case <-timer.C:
		return signal{}, false
	}
}

func (s *ExecutionState) apply(sig signal) {
	current := s.Phase()
	if current == Stopped {
		return
	}
	if current == Running && sig.phase != Stopped {
		// Keep the time already waited in this cycle. The signal time is used
		// instead of now in case the worker picked the signal up late.
		if elapsed := sig.at.Sub(s.waitStarted); elapsed > 0 {
			s.alreadyWaited += elapsed
		}
	}
	if sig.phase == Stopped {
		s.SetStopped()
		return
	}
	s.phase.Store(int32(sig.phase))
}
