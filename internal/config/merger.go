package config

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Merger combines the configuration layers and publishes the result into a
// Store. Precedence, lowest first: defaults, orchestration, user.
type Merger struct {
	store  *Store
	user   Overrides
	logger zerolog.Logger

	mu            sync.Mutex
	orchestration Overrides
}

// NewMerger validates the user layer and publishes the initial snapshot.
func NewMerger(store *Store, user Overrides, logger zerolog.Logger) (*Merger, error) {
	m := &Merger{
		store:  store,
		user:   user,
		logger: logger.With().Str("component", "config").Logger(),
	}
	if err := m.publish(Overrides{}); err != nil {
		return nil, err
	}
	return m, nil
}

// Store returns the store the merger publishes into.
func (m *Merger) Store() *Store {
	return m.store
}

// MergeWith applies a backend orchestration response. Values the user set
// keep precedence. Orchestration values persist until the backend sends new
// ones. On error the previous snapshot stays current.
func (m *Merger) MergeWith(response map[string]any) error {
	return m.merge(ParseOrchestration(response, m.logger))
}

// DisableProfiling turns sampling off and leaves the other values unchanged.
func (m *Merger) DisableProfiling() error {
	return m.merge(Overrides{ShouldProfile: ptr(false)})
}

func (m *Merger) merge(o Overrides) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.orchestration.Overlay(o)
	if err := m.publish(next); err != nil {
		return err
	}
	m.orchestration = next
	return nil
}

func (m *Merger) publish(orchestration Overrides) error {
	c, err := NewAgentConfiguration(orchestration.Overlay(m.user))
	if err != nil {
		return fmt.Errorf("failed to merge agent configuration: %w", err)
	}
	m.store.Set(c)
	m.logger.Info().Stringer("config", c).Msg("New agent configuration")
	return nil
}
