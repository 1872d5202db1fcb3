package pprofreport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/constants"
	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/reporter/file"
)

// Suffix is the extension of written profiles.
const Suffix = ".pb.gz"

// Options configures a Reporter.
type Options struct {
	Dir    string
	Prefix string
	Clock  clock.Clock
	Logger zerolog.Logger
}

// Reporter writes every profile to <dir>/<prefix><timestamp>.pb.gz.
type Reporter struct {
	dir    string
	prefix string
	clock  clock.Clock
	logger zerolog.Logger
}

// New creates a pprof reporter.
func New(opts Options) *Reporter {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Prefix == "" {
		opts.Prefix = constants.DefaultFilePrefix
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Reporter{
		dir:    opts.Dir,
		prefix: opts.Prefix,
		clock:  opts.Clock,
		logger: opts.Logger.With().Str("component", "pprof_reporter").Logger(),
	}
}

// Setup creates the output directory.
func (r *Reporter) Setup(context.Context) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory %s: %w", r.dir, err)
	}
	return nil
}

// RefreshConfiguration is a no-op.
func (r *Reporter) RefreshConfiguration(context.Context) error {
	return nil
}

// Report converts p and writes it to a new file.
func (r *Reporter) Report(_ context.Context, p *model.Profile) error {
	out, err := Convert(p)
	if err != nil {
		return err
	}

	path := r.PathFor(r.clock.Now())
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create pprof file: %w", err)
	}
	if err := Write(f, out); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close pprof file: %w", err)
	}

	r.logger.Info().
		Str("path", path).
		Int("samples", len(out.Sample)).
		Msg("Wrote pprof profile")
	return nil
}

// PathFor returns the file a report written at t goes to.
func (r *Reporter) PathFor(t time.Time) string {
	return filepath.Join(r.dir, r.prefix+t.UTC().Format(file.TimestampLayout)+Suffix)
}
