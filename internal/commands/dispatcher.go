// Package commands runs gated actions on behalf of community members:
// every request is authorized first, then executed.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/developingchet/guild-counter-sync/internal/counter"
	"github.com/developingchet/guild-counter-sync/internal/permission"
	"github.com/developingchet/guild-counter-sync/internal/snapshot"
	"github.com/developingchet/guild-counter-sync/internal/stats"
	"github.com/developingchet/guild-counter-sync/internal/sweep"
	"github.com/rs/zerolog"
)

// Option names shared by the command definitions and the dispatcher.
const (
	OptCategory = "category"
	OptRank     = "rank"
	OptRole     = "role"
	OptAction   = "command"
	OptFile     = "file"
)

// LabelOption returns the option name of the i-th label (zero based).
func LabelOption(i int) string {
	return fmt.Sprintf("label%d", i+1)
}

// Request is one command invocation.
type Request struct {
	Action     permission.Action
	GuildID    string
	ActorID    string
	ActorRoles []string
	OwnerID    string
	Args       map[string]string
	Document   []byte // config_import payload

	// Fetch loads the config_import payload when Document is empty. It is
	// only called once the request is authorized.
	Fetch func(ctx context.Context) ([]byte, error)
}

// File is an attachment returned to the caller.
type File struct {
	Name string
	Data []byte
}

// Response is what the caller shows to the member.
type Response struct {
	Allowed bool
	Content string
	File    *File
	Err     error // set when an allowed action failed
}

// GuildSweeper sweeps a single community. *sweep.Sweeper implements it.
type GuildSweeper interface {
	SweepGuild(ctx context.Context, guildID string) (sweep.GuildOutcome, error)
}

// Deps are the collaborators the dispatcher acts through.
type Deps struct {
	Resolver    *permission.Resolver
	Permissions *permission.Store
	Setup       *counter.Setup
	Sweeper     GuildSweeper
	Stats       counter.Snapshotter
	Snapshots   *snapshot.Manager
}

// Dispatcher authorizes and runs commands.
type Dispatcher struct {
	deps Deps
	log  zerolog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(deps Deps, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{deps: deps, log: log}
}

const deniedMessage = "You are not allowed to use this command."

// Dispatch authorizes req and runs it. Denied requests get a refusal message
// and no side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	allowed := d.deps.Resolver.Authorize(permission.Request{
		ActorID:    req.ActorID,
		ActorRoles: req.ActorRoles,
		OwnerID:    req.OwnerID,
		GuildID:    req.GuildID,
		Action:     req.Action,
	})
	if !allowed {
		return Response{Content: deniedMessage}
	}

	log := d.log.With().Str("guild_id", req.GuildID).Str("actor_id", req.ActorID).
		Str("action", string(req.Action)).Logger()

	resp, err := d.run(ctx, req)
	resp.Allowed = true
	if err != nil {
		log.Warn().Err(err).Msg("command failed")
		resp.Err = err
		if resp.Content == "" {
			resp.Content = "Command failed: " + err.Error()
		}
		return resp
	}
	log.Info().Msg("command executed")
	return resp
}

func (d *Dispatcher) run(ctx context.Context, req Request) (Response, error) {
	switch req.Action {
	case permission.ActionSetup:
		return d.setup(ctx, req)
	case permission.ActionSync:
		return d.sync(ctx, req)
	case permission.ActionStats:
		return d.stats(ctx, req)
	case permission.ActionPermAdd:
		return d.permAdd(req)
	case permission.ActionPermRemove:
		return d.permRemove(req)
	case permission.ActionPermReset:
		return d.permReset(req)
	case permission.ActionPermList:
		return d.permList(req)
	case permission.ActionPermCommand:
		return d.permCommand(req)
	case permission.ActionConfigExport:
		return d.configExport(req)
	case permission.ActionConfigImport:
		return d.configImport(ctx, req)
	}
	return Response{Content: fmt.Sprintf("`%s` is not handled by this bot.", req.Action)}, nil
}

func (d *Dispatcher) setup(ctx context.Context, req Request) (Response, error) {
	sr := counter.SetupRequest{GuildID: req.GuildID, CategoryID: req.Args[OptCategory]}
	for i := range sr.Labels {
		sr.Labels[i] = req.Args[LabelOption(i)]
	}
	res, err := d.deps.Setup.Run(ctx, sr)
	if err != nil {
		var ic *counter.ErrInvalidCategory
		if errors.As(err, &ic) {
			return Response{Content: "Please choose a valid category: " + ic.Reason + "."}, err
		}
		return Response{}, err
	}
	if res.Cleared {
		return Response{Content: fmt.Sprintf("Counters removed (%d channels deleted).", res.Removed)}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Created %d counters.", len(res.Config.Slots))
	if res.Removed > 0 {
		fmt.Fprintf(&b, " Replaced %d previous channels.", res.Removed)
	}
	if res.SnapshotErr != nil {
		b.WriteString(" Values will appear with the next refresh.")
	} else if res.Reconcile != nil && !res.Reconcile.OK() {
		fmt.Fprintf(&b, " %d counters could not be updated yet.", len(res.Reconcile.Errors()))
	}
	return Response{Content: b.String()}, nil
}

func (d *Dispatcher) sync(ctx context.Context, req Request) (Response, error) {
	out, err := d.deps.Sweeper.SweepGuild(ctx, req.GuildID)
	if errors.Is(err, counter.ErrConfigurationAbsent) {
		return Response{Content: "No counters are configured here. Run /setup first."}, nil
	}
	if err != nil {
		return Response{Content: "Statistics are unavailable right now."}, err
	}
	r := out.Reconcile
	msg := fmt.Sprintf("Counters refreshed: %d renamed, %d unchanged.", r.Renamed, r.Unchanged)
	if n := len(r.Dangling); n > 0 {
		msg += fmt.Sprintf(" %d counter channels are missing; run /setup to recreate them.", n)
	}
	if n := len(r.Failures); n > 0 {
		msg += fmt.Sprintf(" %d could not be renamed and will be retried.", n)
	}
	return Response{Content: msg}, nil
}

func (d *Dispatcher) stats(ctx context.Context, req Request) (Response, error) {
	snap, err := d.deps.Stats.ComputeSnapshot(ctx, req.GuildID)
	if err != nil {
		return Response{Content: "Statistics are unavailable right now."}, err
	}
	var b strings.Builder
	for m := stats.MetricTotal; m <= stats.MetricBoosts; m++ {
		fmt.Fprintf(&b, "%s %s: %d\n", m.Icon(), m, snap.Value(m))
	}
	return Response{Content: strings.TrimRight(b.String(), "\n")}, nil
}

func (d *Dispatcher) rankAndRole(req Request) (permission.Rank, string, error) {
	rank, err := permission.ParseRank(req.Args[OptRank])
	if err != nil {
		return 0, "", err
	}
	role := req.Args[OptRole]
	if role == "" {
		return 0, "", fmt.Errorf("a role is required")
	}
	return rank, role, nil
}

func (d *Dispatcher) permAdd(req Request) (Response, error) {
	rank, role, err := d.rankAndRole(req)
	if err != nil {
		return Response{}, err
	}
	added, err := d.deps.Permissions.AddRole(req.GuildID, rank, role)
	if err != nil {
		return Response{}, err
	}
	if !added {
		return Response{Content: fmt.Sprintf("<@&%s> already has rank %d (%s).", role, rank, rank)}, nil
	}
	return Response{Content: fmt.Sprintf("<@&%s> now has rank %d (%s).", role, rank, rank)}, nil
}

func (d *Dispatcher) permRemove(req Request) (Response, error) {
	rank, role, err := d.rankAndRole(req)
	if err != nil {
		return Response{}, err
	}
	if !d.deps.Permissions.RemoveRole(req.GuildID, rank, role) {
		return Response{Content: fmt.Sprintf("<@&%s> does not have rank %d.", role, rank)}, nil
	}
	return Response{Content: fmt.Sprintf("<@&%s> no longer has rank %d.", role, rank)}, nil
}

func (d *Dispatcher) permReset(req Request) (Response, error) {
	if !d.deps.Permissions.Reset(req.GuildID) {
		return Response{Content: "No permissions were configured."}, nil
	}
	return Response{Content: "Permissions reset. Only the server owner can use commands now."}, nil
}

func (d *Dispatcher) permList(req Request) (Response, error) {
	cfg, err := d.deps.Permissions.Lookup(req.GuildID)
	if errors.Is(err, permission.ErrConfigurationAbsent) {
		return Response{Content: "No permissions configured. Only the server owner can use commands."}, nil
	}
	var b strings.Builder
	for r := permission.MaxRank; r >= permission.RankHelper; r-- {
		roles := cfg.Tiers[r]
		mentions := make([]string, len(roles))
		for i, role := range roles {
			mentions[i] = "<@&" + role + ">"
		}
		list := strings.Join(mentions, ", ")
		if list == "" {
			list = "none"
		}
		fmt.Fprintf(&b, "Rank %d (%s): %s\n", r, r, list)
	}
	if len(cfg.Commands) > 0 {
		actions := make([]string, 0, len(cfg.Commands))
		for a := range cfg.Commands {
			actions = append(actions, string(a))
		}
		sort.Strings(actions)
		b.WriteString("Overrides:\n")
		for _, a := range actions {
			fmt.Fprintf(&b, "/%s requires rank %d\n", a, cfg.Commands[permission.Action(a)])
		}
	}
	return Response{Content: strings.TrimRight(b.String(), "\n")}, nil
}

func (d *Dispatcher) permCommand(req Request) (Response, error) {
	action := permission.Action(req.Args[OptAction])
	if !permission.Known(action) {
		return Response{}, fmt.Errorf("unknown command %q", action)
	}
	if v := req.Args[OptRank]; v == "" || v == "default" {
		d.deps.Permissions.ClearCommandRank(req.GuildID, action)
		def, _ := permission.RequiredRank(action)
		return Response{Content: fmt.Sprintf("/%s uses its default rank %d again.", action, def)}, nil
	}
	rank, err := permission.ParseRank(req.Args[OptRank])
	if err != nil {
		return Response{}, err
	}
	if err := d.deps.Permissions.SetCommandRank(req.GuildID, action, rank); err != nil {
		return Response{}, err
	}
	return Response{Content: fmt.Sprintf("/%s now requires rank %d (%s).", action, rank, rank)}, nil
}

func (d *Dispatcher) configExport(req Request) (Response, error) {
	res, err := d.deps.Snapshots.ExportGuild(req.GuildID)
	if err != nil {
		return Response{}, err
	}
	name := fmt.Sprintf("export-%d.json", res.TakenAt.Unix())
	return Response{
		Content: "Configuration exported.",
		File:    &File{Name: name, Data: res.Document},
	}, nil
}

func (d *Dispatcher) configImport(ctx context.Context, req Request) (Response, error) {
	data := req.Document
	if len(data) == 0 && req.Fetch != nil {
		var err error
		if data, err = req.Fetch(ctx); err != nil {
			return Response{Content: "Could not read the attached file."}, err
		}
	}
	if len(data) == 0 {
		return Response{}, fmt.Errorf("attach an export file")
	}
	res, err := d.deps.Snapshots.ImportGuild(ctx, req.GuildID, data)
	if err != nil {
		return Response{}, err
	}
	d.log.Debug().Str("guild_id", req.GuildID).Time("taken_at", res.TakenAt).Msg("import applied")
	return Response{Content: "Configuration imported. Counters will refresh shortly."}, nil
}
