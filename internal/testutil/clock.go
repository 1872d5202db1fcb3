package testutil

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Epoch is the time mock clocks start at. Profiles reject a zero start, so
// mocks never start at the Unix epoch.
var Epoch = time.UnixMilli(1603884061556)

// NewMockClock returns a mock clock set to Epoch.
func NewMockClock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(Epoch)
	return mock
}
