package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/developingchet/guild-counter-sync/internal/counter"
	"github.com/developingchet/guild-counter-sync/internal/permission"
	"github.com/developingchet/guild-counter-sync/internal/testutil"
	"github.com/rs/zerolog"
)

func populated(t *testing.T) (*counter.Store, *permission.Store) {
	t.Helper()
	cs := counter.NewStore()
	cs.Set(counter.Config{
		GuildID:    "g1",
		CategoryID: "cat",
		Labels:     [counter.MaxCounters]string{"Members", "", "Voice", ""},
		Slots:      []string{"s1", "s2"},
	})
	ps := permission.NewStore()
	if _, err := ps.AddRole("g1", permission.RankAdmin, "r-admin"); err != nil {
		t.Fatal(err)
	}
	if err := ps.SetCommandRank("g1", permission.ActionSync, permission.RankHelper); err != nil {
		t.Fatal(err)
	}
	return cs, ps
}

func TestExportImportRestoresStores(t *testing.T) {
	cs, ps := populated(t)
	data, err := Encode(Build(cs, ps, time.Now()))
	if err != nil {
		t.Fatal(err)
	}

	cs2 := counter.NewStore()
	cs2.Set(counter.Config{GuildID: "stale"})
	ps2 := permission.NewStore()
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := Apply(doc, cs2, ps2); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, ok := cs2.Get("stale"); ok {
		t.Error("import must replace, not merge")
	}
	got, ok := cs2.Get("g1")
	if !ok || got.Labels[2] != "Voice" || len(got.Slots) != 2 || got.CategoryID != "cat" {
		t.Errorf("counter config: %+v", got)
	}
	pc, ok := ps2.Get("g1")
	if !ok || len(pc.Tiers[permission.RankAdmin]) != 1 || pc.Commands[permission.ActionSync] != permission.RankHelper {
		t.Errorf("permission config: %+v", pc)
	}
}

func TestDecodeAcceptsNullLabels(t *testing.T) {
	raw := `{
  "counterConfigs": {"g1": {"labels": ["Members", null, "Voice", null], "slots": ["a", "b"], "categoryId": "c"}},
  "permissionConfigs": {"g1": {"tiers": {"2": ["r1"]}}},
  "timestamp": "2026-03-01T12:00:00Z"
}`
	doc, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cc, err := doc.Counters()
	if err != nil {
		t.Fatalf("CounterConfigs: %v", err)
	}
	b := cc["g1"].Bindings()
	if len(b) != 2 || b[1].Label != "Voice" || b[1].Slot != "b" {
		t.Errorf("bindings: %+v", b)
	}
	pc, err := doc.Permissions()
	if err != nil {
		t.Fatalf("PermissionConfigs: %v", err)
	}
	if pc["g1"].Tiers[permission.RankModerator][0] != "r1" {
		t.Errorf("tiers: %+v", pc["g1"].Tiers)
	}
}

func TestApplyRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"too many labels":  `{"counterConfigs": {"g1": {"labels": ["a","b","c","d","e"], "slots": ["1","2","3","4","5"], "categoryId": "c"}}}`,
		"slot mismatch":    `{"counterConfigs": {"g1": {"labels": ["a","b"], "slots": ["1"], "categoryId": "c"}}}`,
		"bad rank":         `{"permissionConfigs": {"g1": {"tiers": {"9": ["r"]}}}}`,
		"unknown action":   `{"permissionConfigs": {"g1": {"tiers": {}, "commands": {"fly": 1}}}}`,
		"missing category": `{"counterConfigs": {"g1": {"labels": ["a"], "slots": ["1"]}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			cs, ps := populated(t)
			doc, err := Decode([]byte(raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if err := Apply(doc, cs, ps); err == nil {
				t.Fatal("expected validation error")
			}
			if _, ok := cs.Get("g1"); !ok {
				t.Error("counter store must be untouched after a rejected import")
			}
			if _, ok := ps.Get("g1"); !ok {
				t.Error("permission store must be untouched after a rejected import")
			}
		})
	}
}

func TestDecodeRejectsNewerVersion(t *testing.T) {
	if _, err := Decode([]byte(`{"version": 99}`)); err == nil {
		t.Error("expected version error")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestManagerExportAndRestore(t *testing.T) {
	cs, ps := populated(t)
	store := testutil.NewMockStore()
	dir := t.TempDir()
	m := NewManager(cs, ps, store, nil, dir, zerolog.Nop())

	res, err := m.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Path == "" || !strings.HasPrefix(filepath.Base(res.Path), "export-") {
		t.Fatalf("unexpected export path %q", res.Path)
	}
	onDisk, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(onDisk) != string(res.Document) {
		t.Error("file and archived document differ")
	}
	if _, err := os.Stat(res.Path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should be renamed away")
	}

	// wipe the stores, then restore from the archive
	cs.Replace(nil)
	ps.Reset("g1")
	imp, found, err := m.RestoreLatest()
	if err != nil || !found {
		t.Fatalf("RestoreLatest: found=%v err=%v", found, err)
	}
	if imp.Counters != 1 || imp.Permissions != 1 {
		t.Errorf("import result: %+v", imp)
	}
	if _, ok := cs.Get("g1"); !ok {
		t.Error("counter config should be restored")
	}
}

func TestManagerRestoreEmptyArchive(t *testing.T) {
	m := NewManager(counter.NewStore(), permission.NewStore(), testutil.NewMockStore(), nil, "", zerolog.Nop())
	_, found, err := m.RestoreLatest()
	if err != nil || found {
		t.Errorf("empty archive: found=%v err=%v", found, err)
	}
}

func TestManagerExportWithoutDir(t *testing.T) {
	cs, ps := populated(t)
	store := testutil.NewMockStore()
	m := NewManager(cs, ps, store, nil, "", zerolog.Nop())
	res, err := m.Export()
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != "" {
		t.Errorf("no export dir: path should be empty, got %q", res.Path)
	}
	all, _ := store.ListSnapshots()
	if len(all) != 1 {
		t.Errorf("expected 1 archived snapshot, got %d", len(all))
	}
}

func TestGuildScopedImportLeavesOtherGuilds(t *testing.T) {
	cs, ps := populated(t)
	cs.Set(counter.Config{
		GuildID:    "g2",
		CategoryID: "cat2",
		Labels:     [counter.MaxCounters]string{"Total", "", "", ""},
		Slots:      []string{"x1"},
	})
	m := NewManager(cs, ps, testutil.NewMockStore(), nil, "", zerolog.Nop())

	exp, err := m.ExportGuild("g1")
	if err != nil {
		t.Fatalf("ExportGuild: %v", err)
	}
	if strings.Contains(string(exp.Document), "g2") {
		t.Fatalf("guild export leaked another guild:\n%s", exp.Document)
	}

	// A document that also names g2 must not touch it.
	doc := `{"version":1,
		"counterConfigs":{
			"g1":{"labels":["Everyone"],"slots":["n1"],"categoryId":"cat"},
			"g2":{"labels":[],"slots":[],"categoryId":""}},
		"permissionConfigs":{}}`
	res, err := m.ImportGuild(context.Background(), "g1", []byte(doc))
	if err != nil {
		t.Fatalf("ImportGuild: %v", err)
	}
	if res.Counters != 1 || res.Permissions != 0 {
		t.Errorf("result: %+v", res)
	}
	g1, _ := cs.Get("g1")
	if g1.Labels[0] != "Everyone" || len(g1.Slots) != 1 {
		t.Errorf("g1 not imported: %+v", g1)
	}
	if _, ok := ps.Get("g1"); ok {
		t.Error("missing permission entry should clear g1 permissions")
	}
	g2, ok := cs.Get("g2")
	if !ok || g2.CategoryID != "cat2" {
		t.Errorf("g2 must be untouched: %+v", g2)
	}
}

func TestGuildScopedImportRejectsInvalidEntry(t *testing.T) {
	cs, ps := populated(t)
	m := NewManager(cs, ps, testutil.NewMockStore(), nil, "", zerolog.Nop())
	doc := `{"version":1,"counterConfigs":{},"permissionConfigs":{"g1":{"tiers":{"9":["r"]}}}}`
	if _, err := m.ImportGuild(context.Background(), "g1", []byte(doc)); err == nil {
		t.Fatal("expected rank validation error")
	}
	if _, ok := cs.Get("g1"); !ok {
		t.Error("failed import must leave the counter config in place")
	}
	if _, ok := ps.Get("g1"); !ok {
		t.Error("failed import must leave the permission config in place")
	}
}

func TestGuildScopedImportRejectsForeignDocument(t *testing.T) {
	cs, ps := populated(t)
	m := NewManager(cs, ps, testutil.NewMockStore(), nil, "", zerolog.Nop())
	doc := `{"version":1,"counterConfigs":{"g9":{"labels":["A"],"slots":["s"],"categoryId":"c"}},"permissionConfigs":{}}`
	if _, err := m.ImportGuild(context.Background(), "g1", []byte(doc)); err == nil {
		t.Fatal("document without an entry for g1 should be rejected")
	}
	if _, ok := cs.Get("g1"); !ok {
		t.Error("rejected import must not clear g1")
	}
}

func TestCheck(t *testing.T) {
	good := `{"version":1,"counterConfigs":{"g1":{"labels":["A"],"slots":["s"],"categoryId":"c"}},"permissionConfigs":{}}`
	doc, err := Check([]byte(good))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(doc.CounterConfigs) != 1 {
		t.Errorf("decoded %d counter configs", len(doc.CounterConfigs))
	}
	bad := `{"version":1,"counterConfigs":{"g1":{"labels":["A","B"],"slots":["s"],"categoryId":"c"}}}`
	if _, err := Check([]byte(bad)); err == nil {
		t.Error("slot/label mismatch should fail Check")
	}
	if _, err := Check([]byte("not json")); err == nil {
		t.Error("garbage should fail Check")
	}
}
