// Package encoder serializes a profile into the JSON call-graph format.
//
// The document has four top-level keys: start and end in milliseconds since
// the epoch, agentMetadata, and callgraph. Every call graph node carries its
// self count under counts.WALL_TIME (omitted when zero), its source file, its
// line range ([line] or [min, max]) and its children keyed by
// "module:owner:name" with empty parts skipped.
package encoder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/coral-mesh/coral-profiler/internal/metadata"
	"github.com/coral-mesh/coral-profiler/internal/model"
)

// GzipLevel balances size and speed.
const GzipLevel = 6

// Options configures an Encoder.
type Options struct {
	Metadata *metadata.Metadata
	// Gzip compresses the output.
	Gzip bool
	// Modules shortens source paths into module paths. Defaults to an
	// extractor over DefaultRoots.
	Modules *ModulePathExtractor
}

// Encoder writes profiles as JSON.
type Encoder struct {
	metadata *metadata.Metadata
	gzip     bool
	modules  *ModulePathExtractor
}

// New creates an encoder.
func New(opts Options) *Encoder {
	if opts.Metadata == nil {
		opts.Metadata = &metadata.Metadata{}
	}
	if opts.Modules == nil {
		opts.Modules = NewModulePathExtractor(DefaultRoots())
	}
	return &Encoder{
		metadata: opts.Metadata,
		gzip:     opts.Gzip,
		modules:  opts.Modules,
	}
}

// Gzip reports whether the output is compressed.
func (e *Encoder) Gzip() bool {
	return e.gzip
}

// Document is the encoded form of a profile.
type Document struct {
	Start         int64             `json:"start"`
	End           int64             `json:"end"`
	AgentMetadata metadata.Document `json:"agentMetadata"`
	Callgraph     *Node             `json:"callgraph"`
}

// Node is the encoded form of a call graph node.
type Node struct {
	Counts   map[string]uint64 `json:"counts,omitempty"`
	File     string            `json:"file,omitempty"`
	Line     []int             `json:"line,omitempty"`
	Children map[string]*Node  `json:"children,omitempty"`
}

// Document converts p without serializing it.
func (e *Encoder) Document(p *model.Profile) *Document {
	return &Document{
		Start:         p.Start(),
		End:           p.End(),
		AgentMetadata: e.metadata.Document(p),
		Callgraph:     e.node(p.Root()),
	}
}

// Encode writes p to w.
func (e *Encoder) Encode(w io.Writer, p *model.Profile) error {
	doc := e.Document(p)

	if !e.gzip {
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			return fmt.Errorf("failed to encode profile: %w", err)
		}
		return nil
	}

	zw, err := gzip.NewWriterLevel(w, GzipLevel)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush gzip writer: %w", err)
	}
	return nil
}

func (e *Encoder) node(n *model.CallGraphNode) *Node {
	out := &Node{File: n.SourcePath}
	if n.LeafCount > 0 {
		out.Counts = map[string]uint64{"WALL_TIME": n.LeafCount}
	}
	if lineMin, lineMax, ok := n.LineRange(); ok {
		if lineMin == lineMax {
			out.Line = []int{lineMin}
		} else {
			out.Line = []int{lineMin, lineMax}
		}
	}
	if len(n.Children) > 0 {
		out.Children = make(map[string]*Node, len(n.Children))
		for _, child := range n.Children {
			out.Children[e.modules.FrameKey(child)] = e.node(child)
		}
	}
	return out
}
