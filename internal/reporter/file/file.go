// Package file writes encoded profiles to the local filesystem.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/constants"
	coralerrors "github.com/coral-mesh/coral-profiler/internal/errors"
	"github.com/coral-mesh/coral-profiler/internal/model"
	"github.com/coral-mesh/coral-profiler/internal/reporter/encoder"
)

// TimestampLayout is the timestamp part of report file names.
const TimestampLayout = "2006-01-02T15-04-05"

// Options configures a Reporter.
type Options struct {
	// Dir receives the reports. Created on Setup.
	Dir string
	// Prefix is prepended to every file name.
	Prefix  string
	Encoder *encoder.Encoder
	Clock   clock.Clock
	Logger  zerolog.Logger
}

// Reporter writes every profile to <dir>/<prefix><timestamp>.json, with a
// .gz suffix when the encoder compresses.
type Reporter struct {
	dir     string
	prefix  string
	encoder *encoder.Encoder
	clock   clock.Clock
	logger  zerolog.Logger

	mu   sync.Mutex
	last string
}

// New creates a file reporter.
func New(opts Options) (*Reporter, error) {
	if opts.Encoder == nil {
		return nil, fmt.Errorf("file reporter requires an encoder")
	}
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
		dir:     opts.Dir,
		prefix:  opts.Prefix,
		encoder: opts.Encoder,
		clock:   opts.Clock,
		logger:  opts.Logger.With().Str("component", "file_reporter").Logger(),
	}, nil
}

// Setup creates the output directory.
func (r *Reporter) Setup(context.Context) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory %s: %w", r.dir, err)
	}
	return nil
}

// RefreshConfiguration is a no-op: the file reporter has no backend.
func (r *Reporter) RefreshConfiguration(context.Context) error {
	return nil
}

// Report encodes p into a new file.
func (r *Reporter) Report(_ context.Context, p *model.Profile) error {
	path := r.PathFor(r.clock.Now())
	r.logger.Info().Str("path", path).Msg("Writing profile")

	if err := r.write(path, p); err != nil {
		return err
	}

	r.mu.Lock()
	r.last = path
	r.mu.Unlock()
	return nil
}

func (r *Reporter) write(path string, p *model.Profile) error {
	tmp, err := os.CreateTemp(r.dir, ".profile-*")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer coralerrors.DeferRemove(r.logger, tmp.Name())

	if err := r.encoder.Encode(tmp, p); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move report file into place: %w", err)
	}
	return nil
}

// PathFor returns the file a report written at t goes to.
func (r *Reporter) PathFor(t time.Time) string {
	name := r.prefix + t.UTC().Format(TimestampLayout) + ".json"
	if r.encoder.Gzip() {
		name += ".gz"
	}
	return filepath.Join(r.dir, name)
}

// LastPath returns the file written by the last successful report.
func (r *Reporter) LastPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
