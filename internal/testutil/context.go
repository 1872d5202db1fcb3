// Package testutil provides helpers shared by the profiler tests.
package testutil

import (
	"context"
	"testing"
	"time"
)

// NewTestContext returns a context cancelled after 30 seconds or when the
// test ends.
func NewTestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}
