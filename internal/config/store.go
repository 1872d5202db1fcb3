package config

import "sync/atomic"

// Store publishes the current AgentConfiguration. Readers load one snapshot
// per decision and never see a partially applied update.
type Store struct {
	current atomic.Pointer[AgentConfiguration]
}

// NewStore creates a store holding initial, or the defaults when nil.
func NewStore(initial *AgentConfiguration) *Store {
	if initial == nil {
		c := DefaultAgentConfiguration()
		initial = &c
	}
	s := &Store{}
	s.current.Store(initial)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *AgentConfiguration {
	return s.current.Load()
}

// Set publishes a new snapshot. Nil is ignored.
func (s *Store) Set(c *AgentConfiguration) {
	if c == nil {
		return
	}
	s.current.Store(c)
}
