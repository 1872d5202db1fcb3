package model

import "unsafe"

// Synthetic sizes used to estimate the footprint of a call graph. They mirror
// how nodes and child slices are laid out, without asking the runtime for heap
// statistics on every sample.
const (
	// LineRangeSizeBytes covers the min/max line pair kept on every node.
	LineRangeSizeBytes = 2 * int64(unsafe.Sizeof(int(0)))

	// EmptyNodeSizeBytes is the fixed part of a node, excluding the line range.
	EmptyNodeSizeBytes = int64(unsafe.Sizeof(CallGraphNode{})) - LineRangeSizeBytes

	// BaseStorageSizeBytes is the backing array allocated for a node's first child.
	BaseStorageSizeBytes = int64(unsafe.Sizeof((*CallGraphNode)(nil)))

	// StorageIncrementSizeBytes is what each further child adds to the backing array.
	StorageIncrementSizeBytes = int64(unsafe.Sizeof((*CallGraphNode)(nil)))
)

// MemoryCounter accumulates the estimated size of a call graph.
// The total only grows: nodes are never removed while a profile is alive.
type MemoryCounter struct {
	usageBytes int64
}

// NewMemoryCounter returns a counter starting at zero.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

// UsageBytes returns the running total.
func (c *MemoryCounter) UsageBytes() int64 {
	return c.usageBytes
}

// CountCreateNode records a new node with the given identity strings.
func (c *MemoryCounter) CountCreateNode(name, sourcePath, ownerType string) {
	c.usageBytes += EmptyNodeSizeBytes
	c.usageBytes += int64(len(name))
	c.usageBytes += int64(len(sourcePath))
	c.usageBytes += int64(len(ownerType))
	// Every node is charged a line range, including the root which never has one.
	c.usageBytes += LineRangeSizeBytes
}

// CountFirstChild records the storage allocated when a node gets its first child.
func (c *MemoryCounter) CountFirstChild() {
	c.usageBytes += BaseStorageSizeBytes
}

// CountAddChild records one more child on a node that already has children.
func (c *MemoryCounter) CountAddChild() {
	c.usageBytes += StorageIncrementSizeBytes
}
