package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrConfigurationAbsent is returned when a community has no permission configuration.
var ErrConfigurationAbsent = errors.New("permission configuration absent")

// Config is one community's permission configuration.
type Config struct {
	Tiers    map[Rank][]string // rank -> role IDs, sorted
	Commands map[Action]Rank   // per-community required rank overrides
}

// Validate checks ranks and actions of an imported configuration.
func (c Config) Validate() error {
	for r, roles := range c.Tiers {
		if !r.Valid() {
			return fmt.Errorf("tier rank must be 1–%d; got %d", MaxRank, r)
		}
		for _, role := range roles {
			if role == "" {
				return fmt.Errorf("tier %d: empty role id", r)
			}
		}
	}
	for a, r := range c.Commands {
		if !Known(a) {
			return fmt.Errorf("unknown action %q", a)
		}
		if !r.Valid() {
			return fmt.Errorf("action %s: rank must be 1–%d; got %d", a, MaxRank, r)
		}
	}
	return nil
}

type entry struct {
	tiers    map[Rank]map[string]struct{}
	commands map[Action]Rank
}

func newEntry() *entry {
	return &entry{tiers: make(map[Rank]map[string]struct{}), commands: make(map[Action]Rank)}
}

func (e *entry) config() Config {
	c := Config{Tiers: make(map[Rank][]string, len(e.tiers)), Commands: make(map[Action]Rank, len(e.commands))}
	for r, set := range e.tiers {
		roles := make([]string, 0, len(set))
		for role := range set {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		c.Tiers[r] = roles
	}
	for a, r := range e.commands {
		c.Commands[a] = r
	}
	return c
}

// Store is the in-memory permission configuration keyed by guild ID.
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// AddRole authorizes roleID at rank in guildID. It reports whether the role
// was newly added.
func (s *Store) AddRole(guildID string, rank Rank, roleID string) (bool, error) {
	if !rank.Valid() {
		return false, fmt.Errorf("rank must be 1–%d; got %d", MaxRank, rank)
	}
	if roleID == "" {
		return false, fmt.Errorf("role id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[guildID]
	if !ok {
		e = newEntry()
		s.entries[guildID] = e
	}
	set, ok := e.tiers[rank]
	if !ok {
		set = make(map[string]struct{})
		e.tiers[rank] = set
	}
	if _, exists := set[roleID]; exists {
		return false, nil
	}
	set[roleID] = struct{}{}
	return true, nil
}

// RemoveRole withdraws roleID from rank and reports whether it was present.
func (s *Store) RemoveRole(guildID string, rank Rank, roleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[guildID]
	if !ok {
		return false
	}
	set, ok := e.tiers[rank]
	if !ok {
		return false
	}
	if _, exists := set[roleID]; !exists {
		return false
	}
	delete(set, roleID)
	if len(set) == 0 {
		delete(e.tiers, rank)
	}
	return true
}

// Reset removes the guild's configuration entirely, leaving only the owner
// and super-operator overrides.
func (s *Store) Reset(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[guildID]
	delete(s.entries, guildID)
	return ok
}

// Get returns a copy of the guild's configuration.
func (s *Store) Get(guildID string) (Config, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[guildID]
	if !ok {
		return Config{}, false
	}
	return e.config(), true
}

// Lookup is Get with ErrConfigurationAbsent for a missing guild.
func (s *Store) Lookup(guildID string) (Config, error) {
	c, ok := s.Get(guildID)
	if !ok {
		return Config{}, ErrConfigurationAbsent
	}
	return c, nil
}

// SetCommandRank overrides the required rank of a known action in guildID.
func (s *Store) SetCommandRank(guildID string, action Action, rank Rank) error {
	if !Known(action) {
		return fmt.Errorf("unknown action %q", action)
	}
	if !rank.Valid() {
		return fmt.Errorf("rank must be 1–%d; got %d", MaxRank, rank)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[guildID]
	if !ok {
		e = newEntry()
		s.entries[guildID] = e
	}
	e.commands[action] = rank
	return nil
}

// ClearCommandRank restores the default rank of action in guildID.
func (s *Store) ClearCommandRank(guildID string, action Action) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[guildID]
	if !ok {
		return false
	}
	if _, set := e.commands[action]; !set {
		return false
	}
	delete(e.commands, action)
	return true
}

// List returns the configured guild IDs in sorted order.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of every configuration.
func (s *Store) Snapshot() map[string]Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Config, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.config()
	}
	return out
}

// Replace discards all configurations and installs configs instead.
// Nothing is changed if any configuration is invalid.
func (s *Store) Replace(configs map[string]Config) error {
	next := make(map[string]*entry, len(configs))
	for id, c := range configs {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("guild %s: %w", id, err)
		}
		next[id] = entryFrom(c)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = next
	return nil
}

// Put installs cfg as the configuration of guildID, replacing any previous one.
func (s *Store) Put(guildID string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e := entryFrom(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[guildID] = e
	return nil
}

func entryFrom(c Config) *entry {
	e := newEntry()
	for r, roles := range c.Tiers {
		if len(roles) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(roles))
		for _, role := range roles {
			set[role] = struct{}{}
		}
		e.tiers[r] = set
	}
	for a, r := range c.Commands {
		e.commands[a] = r
	}
	return e
}

// required returns the effective required rank of action in guildID and
// whether the guild has a configuration. ok is false for unknown actions.
func (s *Store) required(guildID string, action Action) (rank Rank, configured, ok bool) {
	rank, ok = RequiredRank(action)
	if !ok {
		return 0, false, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, configured := s.entries[guildID]
	if !configured {
		return rank, false, true
	}
	if override, set := e.commands[action]; set {
		rank = override
	}
	return rank, true, true
}

// holds reports whether any of roleIDs is authorized at a rank >= min.
func (s *Store) holds(guildID string, roleIDs []string, min Rank) (Rank, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[guildID]
	if !ok {
		return 0, false
	}
	for r := MaxRank; r >= min; r-- {
		set := e.tiers[r]
		for _, role := range roleIDs {
			if _, ok := set[role]; ok {
				return r, true
			}
		}
	}
	return 0, false
}
