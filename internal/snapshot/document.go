// Package snapshot exports and imports the in-memory counter and permission
// configuration. It is the only way configuration survives a restart.
package snapshot

import (
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"github.com/developingchet/guild-counter-sync/internal/counter"
	"github.com/developingchet/guild-counter-sync/internal/permission"
)

// DocumentVersion is written into every export.
const DocumentVersion = 1

// Document is the export format.
type Document struct {
	Version           int                      `json:"version"`
	CounterConfigs    map[string]CounterDoc    `json:"counterConfigs"`
	PermissionConfigs map[string]PermissionDoc `json:"permissionConfigs"`
	Timestamp         time.Time                `json:"timestamp"`
}

// CounterDoc is one community's counter configuration. Labels are
// index-aligned to metrics; an empty or null label is disabled.
type CounterDoc struct {
	Labels     []string `json:"labels"`
	Slots      []string `json:"slots"`
	CategoryID string   `json:"categoryId"`
}

// PermissionDoc is one community's permission configuration.
type PermissionDoc struct {
	Tiers    map[int][]string `json:"tiers"`
	Commands map[string]int   `json:"commands,omitempty"`
}

// Build captures both stores.
func Build(counters *counter.Store, perms *permission.Store, now time.Time) Document {
	doc := Document{
		Version:           DocumentVersion,
		CounterConfigs:    make(map[string]CounterDoc),
		PermissionConfigs: make(map[string]PermissionDoc),
		Timestamp:         now.UTC(),
	}
	for id, c := range counters.Snapshot() {
		doc.CounterConfigs[id] = CounterDoc{
			Labels:     append([]string(nil), c.Labels[:]...),
			Slots:      append([]string{}, c.Slots...),
			CategoryID: c.CategoryID,
		}
	}
	for id, c := range perms.Snapshot() {
		pd := PermissionDoc{Tiers: make(map[int][]string, len(c.Tiers))}
		for r, roles := range c.Tiers {
			pd.Tiers[int(r)] = roles
		}
		if len(c.Commands) > 0 {
			pd.Commands = make(map[string]int, len(c.Commands))
			for a, r := range c.Commands {
				pd.Commands[string(a)] = int(r)
			}
		}
		doc.PermissionConfigs[id] = pd
	}
	return doc
}

// Encode renders doc as indented JSON.
func Encode(doc Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot document. It does not validate it.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Version > DocumentVersion {
		return Document{}, fmt.Errorf("snapshot version %d is newer than supported version %d", doc.Version, DocumentVersion)
	}
	return doc, nil
}

// Counters converts and validates the counter part of doc.
func (d Document) Counters() (map[string]counter.Config, error) {
	out := make(map[string]counter.Config, len(d.CounterConfigs))
	for _, id := range sortedKeys(d.CounterConfigs) {
		cd := d.CounterConfigs[id]
		if len(cd.Labels) > counter.MaxCounters {
			return nil, fmt.Errorf("guild %s: %d labels, at most %d allowed", id, len(cd.Labels), counter.MaxCounters)
		}
		cfg := counter.Config{GuildID: id, CategoryID: cd.CategoryID, Slots: append([]string(nil), cd.Slots...)}
		copy(cfg.Labels[:], cd.Labels)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("guild %s: %w", id, err)
		}
		out[id] = cfg
	}
	return out, nil
}

// Permissions converts and validates the permission part of doc.
func (d Document) Permissions() (map[string]permission.Config, error) {
	out := make(map[string]permission.Config, len(d.PermissionConfigs))
	for _, id := range sortedKeys(d.PermissionConfigs) {
		pd := d.PermissionConfigs[id]
		cfg := permission.Config{
			Tiers:    make(map[permission.Rank][]string, len(pd.Tiers)),
			Commands: make(map[permission.Action]permission.Rank, len(pd.Commands)),
		}
		for r, roles := range pd.Tiers {
			cfg.Tiers[permission.Rank(r)] = append([]string(nil), roles...)
		}
		for a, r := range pd.Commands {
			cfg.Commands[permission.Action(a)] = permission.Rank(r)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("guild %s: %w", id, err)
		}
		out[id] = cfg
	}
	return out, nil
}

// Check decodes data and validates both parts without applying them.
func Check(data []byte) (Document, error) {
	doc, err := Decode(data)
	if err != nil {
		return Document{}, err
	}
	if _, err := doc.Counters(); err != nil {
		return Document{}, fmt.Errorf("counter configs: %w", err)
	}
	if _, err := doc.Permissions(); err != nil {
		return Document{}, fmt.Errorf("permission configs: %w", err)
	}
	return doc, nil
}

// Apply validates doc and then replaces both stores wholesale. Nothing is
// changed if the document is invalid.
func Apply(doc Document, counters *counter.Store, perms *permission.Store) error {
	cc, err := doc.Counters()
	if err != nil {
		return fmt.Errorf("counter configs: %w", err)
	}
	pc, err := doc.Permissions()
	if err != nil {
		return fmt.Errorf("permission configs: %w", err)
	}
	if err := perms.Replace(pc); err != nil {
		return fmt.Errorf("permission configs: %w", err)
	}
	counters.Replace(cc)
	return nil
}

// Only returns a copy of doc restricted to guildID.
func (d Document) Only(guildID string) Document {
	out := Document{
		Version:           d.Version,
		CounterConfigs:    make(map[string]CounterDoc),
		PermissionConfigs: make(map[string]PermissionDoc),
		Timestamp:         d.Timestamp,
	}
	if c, ok := d.CounterConfigs[guildID]; ok {
		out.CounterConfigs[guildID] = c
	}
	if p, ok := d.PermissionConfigs[guildID]; ok {
		out.PermissionConfigs[guildID] = p
	}
	return out
}

// ApplyGuild validates doc's entries for guildID and installs them. A
// missing entry clears that part of the guild's configuration. Other guilds
// are untouched.
func ApplyGuild(doc Document, guildID string, counters *counter.Store, perms *permission.Store) error {
	doc = doc.Only(guildID)
	cc, err := doc.Counters()
	if err != nil {
		return fmt.Errorf("counter configs: %w", err)
	}
	pc, err := doc.Permissions()
	if err != nil {
		return fmt.Errorf("permission configs: %w", err)
	}
	if p, ok := pc[guildID]; ok {
		if err := perms.Put(guildID, p); err != nil {
			return fmt.Errorf("permission configs: %w", err)
		}
	} else {
		perms.Reset(guildID)
	}
	if c, ok := cc[guildID]; ok {
		counters.Set(c)
	} else {
		counters.Delete(guildID)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
