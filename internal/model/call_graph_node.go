package model

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is returned when a caller violates a precondition.
var ErrInvalidArgument = errors.New("invalid argument")

// CallGraphNode is one position of the aggregated call graph.
//
// A node knows its children (frames observed on top of it) but not its
// parent. LeafCount counts how many times the node was the top of a stack.
type CallGraphNode struct {
	Name       string
	OwnerType  string
	SourcePath string
	LeafCount  uint64

	lineMin  int
	lineMax  int
	hasLines bool

	// Children is kept as a slice and scanned linearly: child sets are small
	// and a slice is both denser and faster than a map at that size.
	Children []*CallGraphNode

	counter *MemoryCounter
}

// NewCallGraphNode creates a node for frame. When counter is non-nil the node
// creation is recorded on it and the counter is inherited by every child.
func NewCallGraphNode(frame Frame, counter *MemoryCounter) *CallGraphNode {
	n := &CallGraphNode{
		Name:       frame.Name,
		OwnerType:  frame.OwnerType,
		SourcePath: frame.SourcePath,
		counter:    counter,
	}
	n.widenLines(frame.Line)
	if counter != nil {
		counter.CountCreateNode(frame.Name, frame.SourcePath, frame.OwnerType)
	}
	return n
}

// FindOrCreateChild returns the child at frame's position, creating it on miss.
// The line range of the returned child is widened with frame.Line.
func (n *CallGraphNode) FindOrCreateChild(frame Frame) *CallGraphNode {
	if child, ok := n.Child(frame); ok {
		child.widenLines(frame.Line)
		return child
	}

	child := NewCallGraphNode(frame, n.counter)
	if n.counter != nil {
		if len(n.Children) == 0 {
			n.counter.CountFirstChild()
		} else {
			n.counter.CountAddChild()
		}
	}
	n.Children = append(n.Children, child)
	return child
}

// Child looks up a direct child by frame identity.
func (n *CallGraphNode) Child(frame Frame) (*CallGraphNode, bool) {
	for _, child := range n.Children {
		if child.matches(frame) {
			return child, true
		}
	}
	return nil, false
}

// IncrementLeaf adds delta to the leaf count. Negative deltas are rejected.
func (n *CallGraphNode) IncrementLeaf(delta int64) error {
	if delta < 0 {
		return fmt.Errorf("cannot add negative count %d to node %q: %w", delta, n.Name, ErrInvalidArgument)
	}
	n.LeafCount += uint64(delta)
	return nil
}

// LineRange returns the smallest and largest line observed at this position.
func (n *CallGraphNode) LineRange() (lineMin, lineMax int, ok bool) {
	return n.lineMin, n.lineMax, n.hasLines
}

// Frame returns the identity of the node as a frame without line.
func (n *CallGraphNode) Frame() Frame {
	return Frame{Name: n.Name, OwnerType: n.OwnerType, SourcePath: n.SourcePath}
}

// Walk visits n and its descendants depth first, parents before children.
// path holds the ancestors of the visited node, root first, excluding it.
// Returning false from fn skips the node's children. path is reused between
// calls and must not be retained.
func (n *CallGraphNode) Walk(fn func(node *CallGraphNode, path []*CallGraphNode) bool) {
	n.walk(fn, nil)
}

func (n *CallGraphNode) walk(fn func(*CallGraphNode, []*CallGraphNode) bool, path []*CallGraphNode) {
	if !fn(n, path) {
		return
	}
	path = append(path, n)
	for _, child := range n.Children {
		child.walk(fn, path)
	}
}

func (n *CallGraphNode) matches(frame Frame) bool {
	return n.Name == frame.Name && n.OwnerType == frame.OwnerType && n.SourcePath == frame.SourcePath
}

func (n *CallGraphNode) widenLines(line int) {
	if line <= 0 {
		return
	}
	if !n.hasLines {
		n.lineMin, n.lineMax, n.hasLines = line, line, true
		return
	}
	if line < n.lineMin {
		n.lineMin = line
	}
	if line > n.lineMax {
		n.lineMax = line
	}
}
