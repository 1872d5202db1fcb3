//go:build !linux

package metrics

import "time"

// ThreadCPUTime falls back to process CPU time where per-thread usage is not
// available.
func ThreadCPUTime() time.Duration {
	return ProcessCPUTime()
}
