// Package disabler decides when the profiler must stop sampling or stop
// entirely because of a kill switch, its CPU overhead or its memory usage.
package disabler

import (
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/coral-mesh/coral-profiler/internal/constants"
)

// KillSwitch reports whether a kill switch file exists. The file system is
// probed at most once per check interval.
type KillSwitch struct {
	path     string
	interval time.Duration
	clock    clock.Clock
	logger   zerolog.Logger

	mu        sync.Mutex
	checked   bool
	lastCheck time.Time
	on        bool
}

// NewKillSwitch creates a kill switch watching path.
func NewKillSwitch(path string, clk clock.Clock, logger zerolog.Logger) *KillSwitch {
	if clk == nil {
		clk = clock.New()
	}
	return &KillSwitch{
		path:     path,
		interval: constants.DefaultKillSwitchCheckInterval,
		clock:    clk,
		logger:   logger,
	}
}

// IsOn reports whether the kill switch file was present at the last probe.
func (k *KillSwitch) IsOn() bool {
	if k.path == "" {
		return false
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.clock.Now()
	if k.checked && now.Sub(k.lastCheck) <= k.interval {
		return k.on
	}

	info, err := os.Stat(k.path)
	k.on = err == nil && info.Mode().IsRegular()
	k.checked = true
	k.lastCheck = now

	if k.on {
		k.logger.Info().Str("path", k.path).Msg("Found kill switch file, profiler will stop")
	}
	return k.on
}
