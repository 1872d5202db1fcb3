package sampler

import (
	"context"
	"errors"
	"runtime/pprof"
	"testing"
	"time"

	"github.com/google/pprof/profile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/coral-profiler/internal/constants"
	"github.com/coral-mesh/coral-profiler/internal/model"
)

// profileBuilder assembles synthetic goroutine profiles. Stacks are given
// bottom first, as a reader would write them.
type profileBuilder struct {
	p         *profile.Profile
	functions map[string]*profile.Function
}

func newProfileBuilder() *profileBuilder {
	return &profileBuilder{
		p: &profile.Profile{
			SampleType: []*profile.ValueType{{Type: "goroutine", Unit: "count"}},
		},
		functions: make(map[string]*profile.Function),
	}
}

func (b *profileBuilder) function(name string) *profile.Function {
	if fn, ok := b.functions[name]; ok {
		return fn
	}
	fn := &profile.Function{ID: uint64(len(b.functions) + 1), Name: name, Filename: "/src/" + name + ".go"}
	b.functions[name] = fn
	b.p.Function = append(b.p.Function, fn)
	return fn
}

func (b *profileBuilder) add(count int64, label string, stack ...string) *profileBuilder {
	sample := &profile.Sample{Value: []int64{count}}
	for i := len(stack) - 1; i >= 0; i-- {
		loc := &profile.Location{
			ID:   uint64(len(b.p.Location) + 1),
			Line: []profile.Line{{Function: b.function(stack[i]), Line: int64(10 + i)}},
		}
		b.p.Location = append(b.p.Location, loc)
		sample.Location = append(sample.Location, loc)
	}
	if label != "" {
		sample.Label = map[string][]string{constants.GoroutineLabel: {label}}
	}
	b.p.Sample = append(b.p.Sample, sample)
	return b
}

func (b *profileBuilder) source() Source {
	return func() (*profile.Profile, error) { return b.p, nil }
}

func names(stack []model.Frame) []string {
	out := make([]string, len(stack))
	for i, f := range stack {
		out[i] = f.Name
	}
	return out
}

func TestSampler_ConvertsStacksBottomFirst(t *testing.T) {
	b := newProfileBuilder().add(1, "", "main.main", "example.com/app.(*Server).Serve", "example.com/app.handle")
	s := New(Options{Source: b.source(), Logger: zerolog.Nop()})

	sample, err := s.Sample(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, sample.Stacks, 1)

	stack := sample.Stacks[0]
	assert.Equal(t, []string{"main", "Serve", "handle"}, names(stack))
	assert.Equal(t, "*Server", stack[1].OwnerType)
	assert.Equal(t, "/src/example.com/app.(*Server).Serve.go", stack[1].SourcePath)
	assert.Equal(t, 11, stack[1].Line)
	assert.Equal(t, 1, sample.AttemptedThreadCount)
	assert.Equal(t, 1, sample.SeenThreadCount)
}

func TestSampler_ExpandsGoroutineCounts(t *testing.T) {
	b := newProfileBuilder().
		add(3, "", "main.main", "main.worker").
		add(1, "", "main.main")
	s := New(Options{Source: b.source(), Logger: zerolog.Nop()})

	sample, err := s.Sample(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, sample.Stacks, 4)
	assert.Equal(t, 4, sample.SeenThreadCount)
}

func TestSampler_ExcludesLabelledGoroutines(t *testing.T) {
	b := newProfileBuilder().
		add(1, "coral-profiler-worker", "main.main", "scheduler.run").
		add(1, "other", "main.main", "main.work")
	s := New(Options{
		Source:   b.source(),
		Excluded: []string{"coral-profiler-worker"},
		Logger:   zerolog.Nop(),
	})

	sample, err := s.Sample(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, sample.Stacks, 1)
	assert.Equal(t, []string{"main", "work"}, names(sample.Stacks[0]))
	assert.Equal(t, 2, sample.AttemptedThreadCount)
	assert.Equal(t, 2, sample.SeenThreadCount)
}

func TestSampler_CapsGoroutines(t *testing.T) {
	b := newProfileBuilder().add(250, "", "main.main", "main.worker")
	s := New(Options{Source: b.source(), MaxGoroutines: 100, Logger: zerolog.Nop()})

	sample, err := s.Sample(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, sample.Stacks, 100)
	assert.Equal(t, 100, sample.AttemptedThreadCount)
	assert.Equal(t, 250, sample.SeenThreadCount)
}

func TestSampler_TruncatesDeepStacks(t *testing.T) {
	b := newProfileBuilder().add(1, "", "main.a", "main.b", "main.c", "main.d", "main.e")
	s := New(Options{Source: b.source(), Logger: zerolog.Nop()})

	sample, err := s.Sample(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "<Truncated>"}, names(sample.Stacks[0]))
}

func TestSampler_MarksSleepingGoroutines(t *testing.T) {
	b := newProfileBuilder().add(1, "", "main.main", "main.poll", "time.Sleep", "runtime.gopark")
	s := New(Options{Source: b.source(), Logger: zerolog.Nop()})

	sample, err := s.Sample(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"main", "poll", "Sleep", "<Sleep>"}, names(sample.Stacks[0]))
}

func TestSampler_SourceError(t *testing.T) {
	boom := errors.New("boom")
	s := New(Options{
		Source: func() (*profile.Profile, error) { return nil, boom },
		Logger: zerolog.Nop(),
	})

	_, err := s.Sample(context.Background(), 100)
	assert.ErrorIs(t, err, boom)
}

func TestSampler_CancelledContext(t *testing.T) {
	s := New(Options{Source: newProfileBuilder().source(), Logger: zerolog.Nop()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Sample(ctx, 100)
	assert.ErrorIs(t, err, context.Canceled)
}

func blockForever(ready chan<- struct{}, release <-chan struct{}) {
	close(ready)
	<-release
}

func TestSampler_RuntimeGoroutineProfile(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	visible, hidden := make(chan struct{}), make(chan struct{})
	go blockForever(visible, release)
	go pprof.Do(context.Background(), pprof.Labels(constants.GoroutineLabel, "hidden-worker"), func(context.Context) {
		blockForever(hidden, release)
	})
	<-visible
	<-hidden
	// Let both goroutines park on the channel.
	time.Sleep(10 * time.Millisecond)

	s := New(Options{MaxGoroutines: 10000, Excluded: []string{"hidden-worker"}, Logger: zerolog.Nop()})
	sample, err := s.Sample(context.Background(), constants.DefaultMaxStackDepth)
	require.NoError(t, err)

	blocked := 0
	for _, stack := range sample.Stacks {
		for _, f := range stack {
			if f.Name == "blockForever" {
				blocked++
				assert.Contains(t, f.SourcePath, "sampler_test.go")
				assert.Positive(t, f.Line)
			}
		}
	}
	assert.Equal(t, 1, blocked, "labelled goroutine is excluded")
	assert.Greater(t, sample.SeenThreadCount, len(sample.Stacks))
}
