package scheduler

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

// recordingClock reports every timer the worker arms, after it is registered
// with the mock, so tests can advance time without racing the worker.
type recordingClock struct {
	*clock.Mock
	waits chan time.Duration
}

func newRecordingClock() *recordingClock {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1603884061556))
	return &recordingClock{Mock: mock, waits: make(chan time.Duration, 16)}
}

func (c *recordingClock) Timer(d time.Duration) *clock.Timer {
	t := c.Mock.Timer(d)
	c.waits <- d
	return t
}

func (c *recordingClock) expectWait(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-c.waits:
		return d
	case <-time.After(2 * time.Second):
		require.FailNow(t, "worker did not arm a timer")
		return 0
	}
}
