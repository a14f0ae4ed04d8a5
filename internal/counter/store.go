package counter

import (
	"sort"
	"sync"

	"github.com/developingchet/guild-counter-sync/internal/metrics"
)

// Store is the in-memory counter configuration keyed by guild ID.
// All methods are safe for concurrent use and never expose internal slices.
type Store struct {
	mu      sync.RWMutex
	configs map[string]Config
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{configs: make(map[string]Config)}
}

// Get returns the configuration for guildID.
func (s *Store) Get(guildID string) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[guildID]
	if !ok {
		return Config{}, false
	}
	return c.clone(), true
}

// Set replaces the configuration for cfg.GuildID wholesale.
func (s *Store) Set(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.GuildID] = cfg.clone()
	metrics.ConfiguredCommunities.Set(float64(len(s.configs)))
}

// Delete removes the configuration for guildID and reports whether one existed.
func (s *Store) Delete(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.configs[guildID]
	delete(s.configs, guildID)
	metrics.ConfiguredCommunities.Set(float64(len(s.configs)))
	return ok
}

// List returns the configured guild IDs in sorted order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.configs))
	for id := range s.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of configured guilds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs)
}

// Snapshot returns a copy of every configuration.
func (s *Store) Snapshot() map[string]Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Config, len(s.configs))
	for id, c := range s.configs {
		out[id] = c.clone()
	}
	return out
}

// Replace discards all configurations and installs configs instead.
func (s *Store) Replace(configs map[string]Config) {
	next := make(map[string]Config, len(configs))
	for id, c := range configs {
		c.GuildID = id
		next[id] = c.clone()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = next
	metrics.ConfiguredCommunities.Set(float64(len(s.configs)))
}
