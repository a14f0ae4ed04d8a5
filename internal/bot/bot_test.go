package bot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/developingchet/guild-counter-sync/internal/commands"
	"github.com/developingchet/guild-counter-sync/internal/config"
	"github.com/developingchet/guild-counter-sync/internal/permission"
	"github.com/developingchet/guild-counter-sync/internal/platform"
	"github.com/developingchet/guild-counter-sync/internal/testutil"
	"github.com/developingchet/guild-counter-sync/internal/trigger"
	"github.com/rs/zerolog"
)

func testConfig() *config.Config {
	return &config.Config{
		SuperOperatorID:     "super-1",
		SyncInterval:        time.Hour,
		SyncDebounce:        time.Second,
		SyncConcurrency:     2,
		SyncQueueDepth:      4,
		DisplayNameTemplate: "{{.Label}} {{.Value}}",
		DisplayPlaceholder:  "⏳",
		JanitorInterval:     time.Minute,
	}
}

func newTestBot(t *testing.T) (*Bot, *testutil.MockPlatform) {
	t.Helper()
	p := testutil.NewMockPlatform()
	p.AddGuild(platform.Guild{ID: "g1", OwnerID: "owner-1"})
	store := testutil.NewMockStore()
	cfg := testConfig()
	comp, err := NewComponents(cfg, p, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewComponents: %v", err)
	}
	b, err := New(cfg, nil, p, store, comp, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b, p
}

func TestHealthHandler(t *testing.T) {
	ready := false
	var pingErr error
	h := healthHandler(func() bool { return ready }, func(context.Context) error { return pingErr })

	get := func(path string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	if code := get("/healthz"); code != http.StatusOK {
		t.Errorf("/healthz: got %d", code)
	}
	if code := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before gateway ready: got %d", code)
	}
	ready = true
	if code := get("/readyz"); code != http.StatusOK {
		t.Errorf("/readyz when ready: got %d", code)
	}
	pingErr = errors.New("unauthorized")
	if code := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("/readyz with failing ping: got %d", code)
	}
}

func TestVoiceEvent(t *testing.T) {
	v := &discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{GuildID: "g1", UserID: "u1", ChannelID: "vc-2"},
		BeforeUpdate: &discordgo.VoiceState{GuildID: "g1", UserID: "u1", ChannelID: "vc-1"},
	}
	ev := voiceEvent(v)
	want := trigger.Event{Kind: trigger.KindVoiceState, GuildID: "g1", UserID: "u1", OldChannelID: "vc-1", NewChannelID: "vc-2"}
	if ev != want {
		t.Errorf("got %+v, want %+v", ev, want)
	}

	// First join: no previous state tracked.
	ev = voiceEvent(&discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "g1", ChannelID: "vc-1"}})
	if ev.OldChannelID != "" || ev.NewChannelID != "vc-1" {
		t.Errorf("join: %+v", ev)
	}
}

func TestMemberEvent(t *testing.T) {
	ev := memberEvent(trigger.KindMemberJoin, &discordgo.Member{GuildID: "g1", User: &discordgo.User{ID: "u1"}})
	if ev.Kind != trigger.KindMemberJoin || ev.GuildID != "g1" || ev.UserID != "u1" {
		t.Errorf("got %+v", ev)
	}
	if ev := memberEvent(trigger.KindMemberLeave, nil); ev.GuildID != "" || ev.Kind != trigger.KindMemberLeave {
		t.Errorf("nil member: %+v", ev)
	}
}

func TestHandleEventSchedulesOnlyConfiguredGuilds(t *testing.T) {
	b, _ := newTestBot(t)
	b.handleEvent(trigger.Event{Kind: trigger.KindMemberJoin, GuildID: "g1"})
	if b.scheduler.QueueDepth() != 0 {
		t.Fatal("event for an unconfigured guild must not queue a sweep")
	}
}

func TestHandleCommandResolvesOwner(t *testing.T) {
	b, _ := newTestBot(t)
	data := discordgo.ApplicationCommandInteractionData{
		Name: "perm",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Name: "add",
			Type: discordgo.ApplicationCommandOptionSubCommand,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: commands.OptRank, Type: discordgo.ApplicationCommandOptionString, Value: "2"},
				{Name: commands.OptRole, Type: discordgo.ApplicationCommandOptionRole, Value: "r-mod"},
			},
		}},
	}

	owner := &discordgo.Member{User: &discordgo.User{ID: "owner-1"}}
	resp := b.handleCommand(context.Background(), "g1", owner, data)
	if !resp.Allowed || resp.Err != nil {
		t.Fatalf("owner perm add: %+v", resp)
	}
	if _, ok := b.comp.Permissions.Get("g1"); !ok {
		t.Error("permission not stored")
	}

	other := &discordgo.Member{User: &discordgo.User{ID: "someone"}, Roles: []string{"r-x"}}
	resp = b.handleCommand(context.Background(), "g1", other, data)
	if resp.Allowed {
		t.Error("non-owner without a tier role must be denied")
	}
}

func TestHandleCommandGuildUnavailable(t *testing.T) {
	b, p := newTestBot(t)
	p.SetError("Guild", errors.New("gateway hiccup"))
	data := discordgo.ApplicationCommandInteractionData{Name: "stats"}
	resp := b.handleCommand(context.Background(), "g1", &discordgo.Member{User: &discordgo.User{ID: "owner-1"}}, data)
	if resp.Allowed || !strings.Contains(resp.Content, "Could not read") {
		t.Errorf("got %+v", resp)
	}
}

func TestHandleCommandImportQueuesSweep(t *testing.T) {
	b, _ := newTestBot(t)
	doc := `{"version":1,"counterConfigs":{},"permissionConfigs":{"g1":{"tiers":{"2":["r-mod"]}}}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srv.Close()

	data := discordgo.ApplicationCommandInteractionData{
		Name: "config",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{{
			Name: "import",
			Type: discordgo.ApplicationCommandOptionSubCommand,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: commands.OptFile, Type: discordgo.ApplicationCommandOptionAttachment, Value: "a1"},
			},
		}},
		Resolved: &discordgo.ApplicationCommandInteractionDataResolved{
			Attachments: map[string]*discordgo.MessageAttachment{"a1": {ID: "a1", URL: srv.URL + "/export.json"}},
		},
	}
	resp := b.handleCommand(context.Background(), "g1", &discordgo.Member{User: &discordgo.User{ID: "owner-1"}}, data)
	if resp.Err != nil {
		t.Fatalf("import: %v", resp.Err)
	}
	cfg, ok := b.comp.Permissions.Get("g1")
	if !ok || len(cfg.Tiers[permission.RankModerator]) != 1 {
		t.Errorf("imported permissions: %+v", cfg)
	}
	if got := b.scheduler.QueueDepth(); got != 1 {
		t.Errorf("expected one queued sweep after import, got %d", got)
	}
}

func TestFetchAttachment(t *testing.T) {
	b, _ := newTestBot(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte("{}"))
		case "/big":
			_, _ = w.Write([]byte(strings.Repeat("x", maxImportBytes+1)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	if data, err := b.fetchAttachment(ctx, srv.URL+"/ok"); err != nil || string(data) != "{}" {
		t.Errorf("ok: %q %v", data, err)
	}
	if _, err := b.fetchAttachment(ctx, srv.URL+"/big"); err == nil {
		t.Error("oversized attachment should fail")
	}
	if _, err := b.fetchAttachment(ctx, srv.URL+"/missing"); err == nil {
		t.Error("404 should fail")
	}
}

func TestArchiveOnShutdown(t *testing.T) {
	for _, restore := range []bool{false, true} {
		p := testutil.NewMockPlatform()
		store := testutil.NewMockStore()
		cfg := testConfig()
		cfg.RestoreOnStart = restore
		comp, err := NewComponents(cfg, p, store, zerolog.Nop())
		if err != nil {
			t.Fatalf("NewComponents: %v", err)
		}
		b, err := New(cfg, nil, p, store, comp, zerolog.Nop())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := comp.Permissions.AddRole("g1", permission.RankAdmin, "r-admin"); err != nil {
			t.Fatal(err)
		}

		b.archiveOnShutdown()
		rec, err := store.LatestSnapshot()
		if err != nil {
			t.Fatal(err)
		}
		if got := rec != nil; got != restore {
			t.Errorf("restore_on_start=%v: archived=%v", restore, got)
		}
		if restore && rec != nil && !strings.Contains(string(rec.Document), "r-admin") {
			t.Errorf("archive is missing live permissions:\n%s", rec.Document)
		}
	}
}
