package metrics

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessCPUTime returns user plus system CPU time of the whole process, or
// zero when it cannot be read.
func ProcessCPUTime() time.Duration {
	p, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return 0
	}
	times, err := p.Times()
	if err != nil {
		return 0
	}
	return time.Duration((times.User + times.System) * float64(time.Second))
}
