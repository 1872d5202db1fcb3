package reporter

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/coral-mesh/coral-profiler/internal/model"
)

// Multi fans every call out to several reporters concurrently. A call fails
// when any reporter fails; the errors of all failing reporters are joined.
type Multi struct {
	reporters []Reporter
}

// NewMulti creates a reporter forwarding to reporters.
func NewMulti(reporters ...Reporter) *Multi {
	return &Multi{reporters: reporters}
}

// Len returns the number of reporters.
func (m *Multi) Len() int {
	return len(m.reporters)
}

// Setup implements Reporter.
func (m *Multi) Setup(ctx context.Context) error {
	return m.each(ctx, "setup", func(ctx context.Context, r Reporter) error {
		return r.Setup(ctx)
	})
}

// RefreshConfiguration implements Reporter.
func (m *Multi) RefreshConfiguration(ctx context.Context) error {
	return m.each(ctx, "refresh configuration", func(ctx context.Context, r Reporter) error {
		return r.RefreshConfiguration(ctx)
	})
}

// Report implements Reporter.
func (m *Multi) Report(ctx context.Context, p *model.Profile) error {
	return m.each(ctx, "report", func(ctx context.Context, r Reporter) error {
		return r.Report(ctx, p)
	})
}

// each runs fn for every reporter. A failing reporter does not cancel the
// others: every reporter runs to completion and all failures are joined.
func (m *Multi) each(ctx context.Context, op string, fn func(context.Context, Reporter) error) error {
	var g errgroup.Group
	errs := make([]error, len(m.reporters))
	for i, r := range m.reporters {
		g.Go(func() error {
			if err := fn(ctx, r); err != nil {
				errs[i] = fmt.Errorf("reporter %d failed to %s: %w", i, op, err)
				return errs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err == nil {
		return nil
	}
	return errors.Join(errs...)
}
