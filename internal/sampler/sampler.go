// Package sampler captures the stacks of the goroutines of the current
// process from the runtime goroutine profile.
package sampler

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/pprof"
	"strings"

	"github.com/google/pprof/profile"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/constants"
	"github.com/coral-mesh/coral-profiler/internal/model"
)

// Source returns a goroutine profile.
type Source func() (*profile.Profile, error)

// Options configures a Sampler.
type Options struct {
	// MaxGoroutines caps the goroutines captured per sample. A random subset
	// is taken when more are running.
	MaxGoroutines int
	// Excluded lists values of the coral.goroutine pprof label whose
	// goroutines are never captured.
	Excluded []string
	// Source defaults to the runtime goroutine profile.
	Source Source
	Logger zerolog.Logger
}

// Sampler captures model.Samples.
type Sampler struct {
	maxGoroutines int
	excluded      map[string]struct{}
	source        Source
	logger        zerolog.Logger
}

// New creates a sampler.
func New(opts Options) *Sampler {
	if opts.MaxGoroutines <= 0 {
		opts.MaxGoroutines = constants.DefaultMaxThreads
	}
	if opts.Source == nil {
		opts.Source = GoroutineProfile
	}
	excluded := make(map[string]struct{}, len(opts.Excluded))
	for _, name := range opts.Excluded {
		excluded[name] = struct{}{}
	}
	return &Sampler{
		maxGoroutines: opts.MaxGoroutines,
		excluded:      excluded,
		source:        opts.Source,
		logger:        opts.Logger.With().Str("component", "sampler").Logger(),
	}
}

// GoroutineProfile captures the runtime goroutine profile.
func GoroutineProfile() (*profile.Profile, error) {
	var buf bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&buf, 0); err != nil {
		return nil, fmt.Errorf("failed to write goroutine profile: %w", err)
	}
	p, err := profile.Parse(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse goroutine profile: %w", err)
	}
	return p, nil
}

// Sample captures the stacks of up to MaxGoroutines goroutines, each
// truncated to maxDepth frames.
func (s *Sampler) Sample(ctx context.Context, maxDepth int) (model.Sample, error) {
	if err := ctx.Err(); err != nil {
		return model.Sample{}, err
	}

	p, err := s.source()
	if err != nil {
		return model.Sample{}, err
	}

	// One entry per goroutine; identical stacks share a pprof sample.
	var goroutines []*profile.Sample
	for _, sample := range p.Sample {
		n := int64(1)
		if len(sample.Value) > 0 {
			n = sample.Value[0]
		}
		for i := int64(0); i < n; i++ {
			goroutines = append(goroutines, sample)
		}
	}

	seen := len(goroutines)
	if seen > s.maxGoroutines {
		rand.Shuffle(len(goroutines), func(i, j int) {
			goroutines[i], goroutines[j] = goroutines[j], goroutines[i]
		})
		goroutines = goroutines[:s.maxGoroutines]
	}

	converted := make(map[*profile.Sample][]model.Frame)
	stacks := make([][]model.Frame, 0, len(goroutines))
	for _, g := range goroutines {
		if s.isExcluded(g) {
			continue
		}
		stack, ok := converted[g]
		if !ok {
			stack = extractStack(g, maxDepth)
			converted[g] = stack
		}
		stacks = append(stacks, stack)
	}

	return model.Sample{
		Stacks:               stacks,
		AttemptedThreadCount: len(goroutines),
		SeenThreadCount:      seen,
	}, nil
}

func (s *Sampler) isExcluded(sample *profile.Sample) bool {
	for _, value := range sample.Label[constants.GoroutineLabel] {
		if _, ok := s.excluded[value]; ok {
			return true
		}
	}
	return false
}

type rawFrame struct {
	symbol string
	file   string
	line   int
}

// extractStack converts a pprof sample, leaf first, into frames ordered from
// the bottom of the stack to the top.
func extractStack(sample *profile.Sample, maxDepth int) []model.Frame {
	var raw []rawFrame
	for i := len(sample.Location) - 1; i >= 0; i-- {
		lines := sample.Location[i].Line
		// Inlined calls come first; the outermost function is last.
		for j := len(lines) - 1; j >= 0; j-- {
			fn := lines[j].Function
			if fn == nil {
				continue
			}
			raw = append(raw, rawFrame{symbol: fn.Name, file: fn.Filename, line: int(lines[j].Line)})
		}
	}

	if maxDepth < 0 {
		maxDepth = 0
	}
	sleeping := false
	if len(raw) < maxDepth {
		raw, sleeping = trimSleep(raw)
	}
	if len(raw) > maxDepth {
		raw = raw[:maxDepth]
	}

	frames := make([]model.Frame, 0, len(raw)+1)
	for _, r := range raw {
		sym := ParseSymbol(r.symbol)
		frames = append(frames, model.NewFrame(sym.Name).
			WithOwner(sym.Owner).
			WithSource(r.file).
			WithLine(r.line))
	}

	if maxDepth > 0 && len(frames) == maxDepth {
		frames[len(frames)-1] = model.TruncatedFrame
	} else if sleeping {
		frames = append(frames, model.SleepFrame)
	}
	return frames
}

// trimSleep drops the runtime frames parking a goroutine inside time.Sleep.
func trimSleep(raw []rawFrame) ([]rawFrame, bool) {
	i := len(raw) - 1
	for i >= 0 && strings.HasPrefix(raw[i].symbol, "runtime.") {
		i--
	}
	if i < 0 || raw[i].symbol != "time.Sleep" {
		return raw, false
	}
	return raw[:i+1], true
}
