// Package reporter defines where finished profiles go.
package reporter

import (
	"context"

	"github.com/coral-mesh/coral-profiler/internal/model"
)

// Reporter delivers profiles. Implementations must not mutate the profile.
type Reporter interface {
	// Setup prepares expensive resources. It is called once, from the
	// first profiling cycle.
	Setup(ctx context.Context) error
	// RefreshConfiguration asks the backend for a new agent configuration.
	RefreshConfiguration(ctx context.Context) error
	// Report delivers one profile. A nil error means it was accepted.
	Report(ctx context.Context, p *model.Profile) error
}

// Nop accepts and discards everything.
type Nop struct{}

// Setup implements Reporter.
func (Nop) Setup(context.Context) error { return nil }

// RefreshConfiguration implements Reporter.
func (Nop) RefreshConfiguration(context.Context) error { return nil }

// Report implements Reporter.
func (Nop) Report(context.Context, *model.Profile) error { return nil }
