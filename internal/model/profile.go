package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RootNodeName is the name of the synthetic root of every call graph.
const RootNodeName = "ALL"

// ProfileOptions configures a new Profile.
type ProfileOptions struct {
	ProfilingGroupName string
	SamplingInterval   time.Duration
	HostWeight         float64
	// Start is the profile start in milliseconds since the epoch. Must be positive.
	Start int64
	// Clock defaults to the wall clock.
	Clock clock.Clock
	// CPUTime returns the CPU time consumed by the process so far. Optional.
	CPUTime func() time.Duration
}

// Profile aggregates samples into a call graph and tracks the wall-clock
// lifecycle of the aggregation.
//
// The call graph is only mutated by the sampling goroutine. Pause and Resume
// may be called from another goroutine; the pause bookkeeping is locked.
type Profile struct {
	ProfilingGroupName     string
	SamplingIntervalMillis int64
	HostWeight             float64

	TotalSampleCount          int64
	TotalAttemptedThreadCount int64
	TotalSeenThreadCount      int64

	CPUTimeSeconds float64
	OverheadMillis float64

	counter *MemoryCounter
	root    *CallGraphNode

	start int64
	end   int64

	mu           sync.Mutex
	lastPause    int64
	lastResume   int64
	pausedMillis int64

	clock        clock.Clock
	cpuTime      func() time.Duration
	startCPUTime time.Duration
}

// NewProfile creates an empty profile starting at opts.Start.
func NewProfile(opts ProfileOptions) (*Profile, error) {
	if opts.Start <= 0 {
		return nil, fmt.Errorf("profile start must be positive, got %d: %w", opts.Start, ErrInvalidArgument)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	counter := NewMemoryCounter()
	p := &Profile{
		ProfilingGroupName:     opts.ProfilingGroupName,
		SamplingIntervalMillis: opts.SamplingInterval.Milliseconds(),
		HostWeight:             opts.HostWeight,
		counter:                counter,
		root:                   NewCallGraphNode(NewFrame(RootNodeName), counter),
		start:                  opts.Start,
		lastResume:             opts.Start,
		clock:                  opts.Clock,
		cpuTime:                opts.CPUTime,
	}
	if p.cpuTime != nil {
		p.startCPUTime = p.cpuTime()
	}
	return p, nil
}

// Root returns the root of the call graph.
func (p *Profile) Root() *CallGraphNode {
	return p.root
}

// Start returns the profile start in milliseconds since the epoch.
func (p *Profile) Start() int64 {
	return p.start
}

// End returns the profile end in milliseconds since the epoch, zero if unset.
func (p *Profile) End() int64 {
	return p.end
}

// SetEnd sets the end of the profile and records the CPU time consumed by the
// process since the profile started.
func (p *Profile) SetEnd(end int64) error {
	if end <= 0 {
		return fmt.Errorf("profile end must be positive, got %d: %w", end, ErrInvalidArgument)
	}
	if end <= p.start {
		return fmt.Errorf("profile end must be after %d, got %d: %w", p.start, end, ErrInvalidArgument)
	}
	p.end = end
	if p.cpuTime != nil {
		p.CPUTimeSeconds = (p.cpuTime() - p.startCPUTime).Seconds()
	}
	return nil
}

// Add merges a sample into the call graph. Only the top frame of every stack
// gets its leaf count incremented.
func (p *Profile) Add(sample Sample) error {
	p.TotalAttemptedThreadCount += int64(sample.AttemptedThreadCount)
	p.TotalSeenThreadCount += int64(sample.SeenThreadCount)
	p.TotalSampleCount++

	for _, stack := range sample.Stacks {
		if err := p.insertStack(stack); err != nil {
			return err
		}
	}

	// end tracks the latest merged sample; a rejected value only means the
	// clock has not moved past start yet.
	if now := p.nowMillis(); now > p.start {
		p.end = now
	}
	return nil
}

func (p *Profile) insertStack(stack []Frame) error {
	node := p.root
	for _, frame := range stack {
		node = node.FindOrCreateChild(frame)
	}
	return node.IncrementLeaf(1)
}

// Pause marks the profile as paused. Calling it while paused is a no-op.
func (p *Profile) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastPause != 0 {
		return
	}
	p.lastPause = p.nowMillis()
	p.lastResume = 0
}

// Resume marks the profile as running and accounts the time spent paused.
// Calling it while running is a no-op.
func (p *Profile) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastResume != 0 {
		return
	}
	p.lastResume = p.nowMillis()
	p.pausedMillis += p.lastResume - p.lastPause
	p.lastPause = 0
}

// IsPaused reports whether the profile is paused.
func (p *Profile) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPause != 0
}

// ActiveMillisSinceStart returns the wall-clock time since start, excluding
// paused periods. While paused the pause instant is used instead of now.
func (p *Profile) ActiveMillisSinceStart() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	end := p.lastPause
	if end == 0 {
		end = p.nowMillis()
	}
	return end - p.start - p.pausedMillis
}

// SetOverhead records the time spent profiling during this profile.
func (p *Profile) SetOverhead(d time.Duration) {
	p.OverheadMillis = float64(d) / float64(time.Millisecond)
}

// MemoryUsageBytes returns the estimated size of the call graph.
func (p *Profile) MemoryUsageBytes() int64 {
	return p.counter.UsageBytes()
}

// IsEmpty reports whether no goroutine was ever seen. A profile whose samples
// saw goroutines with empty stacks is not empty.
func (p *Profile) IsEmpty() bool {
	return p.TotalSeenThreadCount == 0
}

// AverageThreadWeight is seen/attempted goroutines. It is 1.0 when every
// goroutine was sampled and larger when only a subset was.
func (p *Profile) AverageThreadWeight() float64 {
	if p.TotalAttemptedThreadCount == 0 {
		return 1.0
	}
	return float64(p.TotalSeenThreadCount) / float64(p.TotalAttemptedThreadCount)
}

func (p *Profile) String() string {
	return fmt.Sprintf("Profile(profiling_group_name=%s, start=%s, end=%s, duration_ms=%d)",
		p.ProfilingGroupName, formatMillis(p.start), formatMillis(p.end), p.ActiveMillisSinceStart())
}

func (p *Profile) nowMillis() int64 {
	return p.clock.Now().UnixMilli()
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "unset"
	}
	return time.UnixMilli(ms).Format(time.RFC3339)
}
