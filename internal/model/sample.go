package model

// Sample is the output of one capture cycle.
type Sample struct {
	// Stacks holds one stack per sampled goroutine, bottom frame first.
	Stacks [][]Frame
	// AttemptedThreadCount is how many goroutines the sampler tried to capture.
	// It can be larger than len(Stacks) when some were excluded.
	AttemptedThreadCount int
	// SeenThreadCount is how many goroutines existed when the sample was taken.
	SeenThreadCount int
}
