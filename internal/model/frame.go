// Package model holds the call-graph aggregate built from stack samples.
package model

// Frame identifies one position in a stack.
//
// Two frames are the same position when Name, OwnerType and SourcePath are
// equal. Line is not part of the identity; it only widens the line range of
// the matching call graph node. Lines are 1-based, zero means unknown.
type Frame struct {
	Name       string
	OwnerType  string
	SourcePath string
	Line       int
}

var (
	// TruncatedFrame replaces the topmost frame of a stack cut at the maximum depth.
	TruncatedFrame = Frame{Name: "<Truncated>"}

	// SleepFrame is appended to stacks whose top frame is parked in time.Sleep.
	SleepFrame = Frame{Name: "<Sleep>"}
)

// NewFrame returns a frame with only a name.
func NewFrame(name string) Frame {
	return Frame{Name: name}
}

// WithOwner returns a copy of f with the owning type set.
func (f Frame) WithOwner(ownerType string) Frame {
	f.OwnerType = ownerType
	return f
}

// WithSource returns a copy of f with the source path set.
func (f Frame) WithSource(path string) Frame {
	f.SourcePath = path
	return f
}

// WithLine returns a copy of f with the line set.
func (f Frame) WithLine(line int) Frame {
	f.Line = line
	return f
}

// SamePosition reports whether f and other identify the same stack position.
func (f Frame) SamePosition(other Frame) bool {
	return f.Name == other.Name && f.OwnerType == other.OwnerType && f.SourcePath == other.SourcePath
}
