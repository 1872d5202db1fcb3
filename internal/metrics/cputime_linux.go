//go:build linux

package metrics

import (
	"time"

	"golang.org/x/sys/unix"
)

// ThreadCPUTime returns user plus system CPU time of the calling OS thread.
// Callers that need stable readings lock their goroutine to its thread.
func ThreadCPUTime() time.Duration {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_THREAD, &ru); err != nil {
		return ProcessCPUTime()
	}
	return time.Duration(ru.Utime.Nano() + ru.Stime.Nano())
}
