package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/counter"
	"github.com/developingchet/guild-counter-sync/internal/permission"
	"github.com/developingchet/guild-counter-sync/internal/platform"
	"github.com/developingchet/guild-counter-sync/internal/storage"
	"github.com/rs/zerolog"
)

// keepArchived is how many exports the janitor keeps in the archive.
const keepArchived = 50

// ExportResult describes one export.
type ExportResult struct {
	Document []byte
	TakenAt  time.Time
	Path     string // empty when no export directory is configured
}

// ImportResult describes one import.
type ImportResult struct {
	Counters    int
	Permissions int
	TakenAt     time.Time
}

// Manager exports the stores into the archive and restores them from it.
type Manager struct {
	counters  *counter.Store
	perms     *permission.Store
	store     storage.Store
	platform  platform.Platform
	exportDir string
	log       zerolog.Logger
}

// NewManager constructs a Manager. exportDir may be empty. p is used to check
// that imported surfaces belong to the importing guild; nil skips the check.
func NewManager(counters *counter.Store, perms *permission.Store, store storage.Store, p platform.Platform,
	exportDir string, log zerolog.Logger) *Manager {
	return &Manager{counters: counters, perms: perms, store: store, platform: p, exportDir: exportDir, log: log}
}

// Export archives the current configuration and, when an export directory
// is configured, writes it to export-<unix>.json there as well.
func (m *Manager) Export() (*ExportResult, error) {
	now := time.Now().UTC()
	doc := Build(m.counters, m.perms, now)
	data, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	if err := m.store.SaveSnapshot(storage.SnapshotRecord{TakenAt: now, Document: data}); err != nil {
		return nil, fmt.Errorf("archive snapshot: %w", err)
	}
	res := &ExportResult{Document: data, TakenAt: now}

	if m.exportDir != "" {
		path := filepath.Join(m.exportDir, fmt.Sprintf("export-%d.json", now.Unix()))
		if err := WriteFile(path, data); err != nil {
			return res, err
		}
		res.Path = path
	}

	m.log.Info().Int("counters", len(doc.CounterConfigs)).Int("permissions", len(doc.PermissionConfigs)).
		Str("path", res.Path).Msg("configuration exported")
	return res, nil
}

// Import decodes data and replaces both stores with it.
func (m *Manager) Import(data []byte) (*ImportResult, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := Apply(doc, m.counters, m.perms); err != nil {
		return nil, err
	}
	res := &ImportResult{
		Counters:    len(doc.CounterConfigs),
		Permissions: len(doc.PermissionConfigs),
		TakenAt:     doc.Timestamp,
	}
	m.log.Info().Int("counters", res.Counters).Int("permissions", res.Permissions).
		Time("taken_at", res.TakenAt).Msg("configuration imported")
	return res, nil
}

// ExportGuild archives the whole configuration like Export and returns the
// document of one community.
func (m *Manager) ExportGuild(guildID string) (*ExportResult, error) {
	full, err := m.Export()
	if err != nil {
		return nil, err
	}
	doc, err := Decode(full.Document)
	if err != nil {
		return nil, err
	}
	data, err := Encode(doc.Only(guildID))
	if err != nil {
		return nil, err
	}
	m.log.Info().Str("guild_id", guildID).Msg("community configuration exported")
	return &ExportResult{Document: data, TakenAt: full.TakenAt, Path: full.Path}, nil
}

// ImportGuild applies the entries of data that belong to guildID. Entries of
// other communities in the document are ignored. A document without any
// entry for guildID, or whose surfaces are not voice channels of guildID, is
// rejected.
func (m *Manager) ImportGuild(ctx context.Context, guildID string, data []byte) (*ImportResult, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	res := &ImportResult{TakenAt: doc.Timestamp}
	if _, ok := doc.CounterConfigs[guildID]; ok {
		res.Counters = 1
	}
	if _, ok := doc.PermissionConfigs[guildID]; ok {
		res.Permissions = 1
	}
	if res.Counters == 0 && res.Permissions == 0 {
		return nil, fmt.Errorf("document has no configuration for guild %s", guildID)
	}
	doc = doc.Only(guildID)
	if m.platform != nil {
		cc, err := doc.Counters()
		if err != nil {
			return nil, fmt.Errorf("counter configs: %w", err)
		}
		if cfg, ok := cc[guildID]; ok {
			if err := counter.CheckSlots(ctx, m.platform, cfg); err != nil {
				return nil, err
			}
		}
	}
	if err := ApplyGuild(doc, guildID, m.counters, m.perms); err != nil {
		return nil, err
	}
	m.log.Info().Str("guild_id", guildID).Int("counters", res.Counters).Int("permissions", res.Permissions).
		Msg("community configuration imported")
	return res, nil
}

// RestoreLatest imports the newest archived export. It reports false when
// the archive is empty.
func (m *Manager) RestoreLatest() (*ImportResult, bool, error) {
	rec, err := m.store.LatestSnapshot()
	if err != nil {
		return nil, false, fmt.Errorf("read archive: %w", err)
	}
	if rec == nil {
		return nil, false, nil
	}
	res, err := m.Import(rec.Document)
	if err != nil {
		return nil, true, err
	}
	return res, true, nil
}

// Prune trims the archive to the newest exports.
func (m *Manager) Prune() (int, error) {
	return m.store.PruneSnapshots(keepArchived)
}

// WriteFile writes data to path through a temporary file and rename.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}
