// Package pprofreport converts profiles to the pprof format and writes them
// as gzipped protobuf files readable by `go tool pprof`.
package pprofreport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/klauspost/compress/gzip"

	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/safe"
)

var gzipWriterPool = sync.Pool{
	New: func() any {
		return gzip.NewWriter(io.Discard)
	},
}

type functionKey struct {
	name  string
	owner string
	file  string
}

type locationKey struct {
	function uint64
	line     int
}

type converter struct {
	out       *profile.Profile
	functions map[functionKey]*profile.Function
	locations map[locationKey]*profile.Location
	period    int64
}

// Convert builds a pprof profile from p. Every node with a non-zero self
// count becomes one sample whose stack is the node's path from the root.
// Sample values are the self count and the wall time it stands for.
func Convert(p *model.Profile) (*profile.Profile, error) {
	period := p.SamplingIntervalMillis * int64(time.Millisecond)

	c := &converter{
		out: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: "samples", Unit: "count"},
				{Type: "wall", Unit: "nanoseconds"},
			},
			PeriodType:    &profile.ValueType{Type: "wall", Unit: "nanoseconds"},
			Period:        period,
			TimeNanos:     p.Start() * int64(time.Millisecond),
			DurationNanos: p.ActiveMillisSinceStart() * int64(time.Millisecond),
			Comments:      []string{"profiling group: " + p.ProfilingGroupName},
		},
		functions: make(map[functionKey]*profile.Function),
		locations: make(map[locationKey]*profile.Location),
		period:    period,
	}

	p.Root().Walk(func(node *model.CallGraphNode, path []*model.CallGraphNode) bool {
		// The synthetic root is not a frame.
		if len(path) == 0 || node.LeafCount == 0 {
			return true
		}
		c.addSample(node, path[1:])
		return true
	})

	if err := c.out.CheckValid(); err != nil {
		return nil, fmt.Errorf("failed to build pprof profile: %w", err)
	}
	return c.out, nil
}

// addSample records node with ancestors ordered root first, excluding the
// synthetic root.
func (c *converter) addSample(node *model.CallGraphNode, ancestors []*model.CallGraphNode) {
	locations := make([]*profile.Location, 0, len(ancestors)+1)
	locations = append(locations, c.location(node))
	for i := len(ancestors) - 1; i >= 0; i-- {
		locations = append(locations, c.location(ancestors[i]))
	}

	count, _ := safe.Uint64ToInt64(node.LeafCount)
	c.out.Sample = append(c.out.Sample, &profile.Sample{
		Location: locations,
		Value:    []int64{count, safe.MulInt64(count, c.period)},
	})
}

func (c *converter) location(node *model.CallGraphNode) *profile.Location {
	fn := c.function(node)
	line, _, _ := node.LineRange()

	key := locationKey{function: fn.ID, line: line}
	if loc, ok := c.locations[key]; ok {
		return loc
	}
	loc := &profile.Location{
		ID:   uint64(len(c.out.Location) + 1),
		Line: []profile.Line{{Function: fn, Line: int64(line)}},
	}
	c.locations[key] = loc
	c.out.Location = append(c.out.Location, loc)
	return loc
}

func (c *converter) function(node *model.CallGraphNode) *profile.Function {
	key := functionKey{name: node.Name, owner: node.OwnerType, file: node.SourcePath}
	if fn, ok := c.functions[key]; ok {
		return fn
	}

	name := node.Name
	if node.OwnerType != "" {
		name = node.OwnerType + "." + node.Name
	}
	fn := &profile.Function{
		ID:         uint64(len(c.out.Function) + 1),
		Name:       name,
		SystemName: name,
		Filename:   node.SourcePath,
	}
	c.functions[key] = fn
	c.out.Function = append(c.out.Function, fn)
	return fn
}

// Write serializes out as gzipped protobuf.
func Write(w io.Writer, out *profile.Profile) error {
	zw := gzipWriterPool.Get().(*gzip.Writer)
	zw.Reset(w)
	defer func() {
		zw.Reset(io.Discard)
		gzipWriterPool.Put(zw)
	}()

	if err := out.WriteUncompressed(zw); err != nil {
		return fmt.Errorf("failed to write pprof profile: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush pprof profile: %w", err)
	}
	return nil
}
