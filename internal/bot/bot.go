// Package bot wires the gateway session, the sweep scheduler and the command
// dispatcher together and runs them until shutdown.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/developingchet/guild-counter-sync/internal/commands"
	"github.com/developingchet/guild-counter-sync/internal/config"
	"github.com/developingchet/guild-counter-sync/internal/counter"
	"github.com/developingchet/guild-counter-sync/internal/permission"
	"github.com/developingchet/guild-counter-sync/internal/platform"
	"github.com/developingchet/guild-counter-sync/internal/scheduler"
	"github.com/developingchet/guild-counter-sync/internal/snapshot"
	"github.com/developingchet/guild-counter-sync/internal/stats"
	"github.com/developingchet/guild-counter-sync/internal/storage"
	"github.com/developingchet/guild-counter-sync/internal/sweep"
	"github.com/developingchet/guild-counter-sync/internal/trigger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// BinaryVersion is set at startup from the -X main.Version ldflags value.
var BinaryVersion = "dev"

// Components are the domain services shared by the daemon and the one-shot
// CLI commands.
type Components struct {
	Counters    *counter.Store
	Permissions *permission.Store
	Aggregator  *stats.Aggregator
	Reconciler  *counter.Reconciler
	Setup       *counter.Setup
	Sweeper     *sweep.Sweeper
	Snapshots   *snapshot.Manager
	Resolver    *permission.Resolver
}

// NewComponents builds the domain services on top of a platform and store.
func NewComponents(cfg *config.Config, p platform.Platform, store storage.Store, log zerolog.Logger) (*Components, error) {
	namer, err := counter.NewDisplayNamer(cfg.DisplayNameTemplate, cfg.DisplayPlaceholder)
	if err != nil {
		return nil, fmt.Errorf("build namer: %w", err)
	}
	counters := counter.NewStore()
	perms := permission.NewStore()
	agg := stats.NewAggregator(p, log)
	rec := counter.NewReconciler(counter.ReconcilerConfig{
		DryRun:       cfg.DryRun,
		RenameWindow: cfg.RenameLimitWindow,
		RenameMax:    cfg.RenameLimitMax,
	}, p, store, namer, log)

	return &Components{
		Counters:    counters,
		Permissions: perms,
		Aggregator:  agg,
		Reconciler:  rec,
		Setup:       counter.NewSetup(p, counters, namer, rec, agg, log),
		Sweeper:     sweep.New(counters, agg, rec, cfg.SyncConcurrency, log),
		Snapshots:   snapshot.NewManager(counters, perms, store, p, cfg.ExportDir, log),
		Resolver:    permission.NewResolver(cfg.SuperOperatorID, perms, log),
	}, nil
}

// Bot owns the gateway session for the lifetime of the daemon.
type Bot struct {
	cfg        *config.Config
	session    *discordgo.Session
	platform   platform.Platform
	store      storage.Store
	comp       *Components
	scheduler  *scheduler.Scheduler
	dispatcher *commands.Dispatcher
	janitor    *Janitor
	filterCfg  trigger.FilterConfig
	httpClient *http.Client
	log        zerolog.Logger

	ready  atomic.Bool
	runCtx context.Context
}

// New constructs a fully wired Bot. The session is opened by Run.
func New(cfg *config.Config, session *discordgo.Session, p platform.Platform, store storage.Store,
	comp *Components, log zerolog.Logger) (*Bot, error) {

	sched, err := scheduler.New(scheduler.Config{
		Interval:     cfg.SyncInterval,
		StartupDelay: cfg.SyncStartupDelay,
		Debounce:     cfg.SyncDebounce,
		QueueDepth:   cfg.SyncQueueDepth,
	}, comp.Sweeper, log)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	dispatcher := commands.NewDispatcher(commands.Deps{
		Resolver:    comp.Resolver,
		Permissions: comp.Permissions,
		Setup:       comp.Setup,
		Sweeper:     comp.Sweeper,
		Stats:       comp.Aggregator,
		Snapshots:   comp.Snapshots,
	}, log)

	counters := comp.Counters
	filterCfg := trigger.FilterConfig{
		Kinds: trigger.DefaultKinds,
		Configured: func(guildID string) bool {
			_, ok := counters.Get(guildID)
			return ok
		},
	}

	httpClient := http.DefaultClient
	if session != nil && session.Client != nil {
		httpClient = session.Client
	}

	return &Bot{
		cfg:        cfg,
		session:    session,
		platform:   p,
		store:      store,
		comp:       comp,
		scheduler:  sched,
		dispatcher: dispatcher,
		janitor:    NewJanitor(store, comp.Snapshots, comp.Counters, sched, cfg.JanitorInterval, cfg.RenameLimitWindow, log),
		filterCfg:  filterCfg,
		httpClient: httpClient,
		log:        log,
		runCtx:     context.Background(),
	}, nil
}

// Run restores the archived configuration if asked to, opens the gateway and
// blocks until ctx is cancelled or a server fails.
func (b *Bot) Run(ctx context.Context) error {
	if b.cfg.RestoreOnStart {
		res, found, err := b.comp.Snapshots.RestoreLatest()
		switch {
		case err != nil:
			b.log.Warn().Err(err).Msg("restore from archive failed; starting empty")
		case !found:
			b.log.Info().Msg("no archived configuration to restore")
		default:
			b.log.Info().Int("counters", res.Counters).Int("permissions", res.Permissions).
				Time("taken_at", res.TakenAt).Msg("configuration restored from archive")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	b.runCtx = gctx
	b.log.Info().Str("version", BinaryVersion).Int("configured", b.comp.Counters.Len()).Msg("connecting to gateway")

	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onResumed)
	b.session.AddHandler(b.onDisconnect)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onMemberUpdate)
	b.session.AddHandler(b.onMemberAdd)
	b.session.AddHandler(b.onMemberRemove)
	b.session.AddHandler(b.onGuildUpdate)
	b.session.AddHandler(b.onPresenceUpdate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer func() {
		if err := b.session.Close(); err != nil {
			b.log.Warn().Err(err).Msg("close gateway")
		}
	}()

	g.Go(func() error {
		return b.scheduler.Run(gctx)
	})

	g.Go(func() error {
		return b.janitor.Run(gctx)
	})

	if b.cfg.MetricsEnabled {
		g.Go(func() error {
			return b.serveMetrics(gctx)
		})
	}

	g.Go(func() error {
		return b.serveHealth(gctx)
	})

	err := g.Wait()
	b.archiveOnShutdown()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// archiveOnShutdown stores the live configuration so the next start with
// restore_on_start picks it up.
func (b *Bot) archiveOnShutdown() {
	if !b.cfg.RestoreOnStart {
		return
	}
	res, err := b.comp.Snapshots.Export()
	if err != nil {
		b.log.Warn().Err(err).Msg("archive on shutdown failed")
		return
	}
	b.log.Info().Time("taken_at", res.TakenAt).Msg("configuration archived on shutdown")
}

// serveMetrics runs the Prometheus HTTP server.
func (b *Bot) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:    b.cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	b.log.Info().Str("addr", b.cfg.MetricsAddr).Msg("Prometheus metrics server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// serveHealth runs the health endpoints.
func (b *Bot) serveHealth(ctx context.Context) error {
	srv := &http.Server{
		Addr:    b.cfg.HealthAddr,
		Handler: healthHandler(b.ready.Load, b.platform.Ping),
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	b.log.Info().Str("addr", b.cfg.HealthAddr).Msg("health server started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// healthHandler serves /healthz (process alive) and /readyz (gateway ready
// and REST API reachable).
func healthHandler(ready func() bool, ping func(context.Context) error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !ready() {
			http.Error(w, "not ready: gateway not connected", http.StatusServiceUnavailable)
			return
		}
		if err := ping(r.Context()); err != nil {
			http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}
