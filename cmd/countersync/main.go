package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/developingchet/guild-counter-sync/internal/bot"
	"github.com/developingchet/guild-counter-sync/internal/commands"
	"github.com/developingchet/guild-counter-sync/internal/config"
	"github.com/developingchet/guild-counter-sync/internal/logger"
	"github.com/developingchet/guild-counter-sync/internal/platform"
	"github.com/developingchet/guild-counter-sync/internal/snapshot"
	"github.com/developingchet/guild-counter-sync/internal/storage"
	"github.com/developingchet/guild-counter-sync/internal/sweep"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set by the build system via -ldflags.
var Version = "dev"

// readyTimeout bounds how long one-shot commands wait for the gateway.
const readyTimeout = 30 * time.Second

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "countersync",
		Short: "Live member counters and tiered command permissions for Discord servers",
	}
	root.AddCommand(
		runCmd(),
		syncCmd(),
		deployCommandsCmd(),
		snapshotCmd(),
		healthcheckCmd(),
		versionCmd(),
	)
	return root
}

// runCmd is the main daemon command.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the counter daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	log.Info().Str("version", Version).Bool("dry_run", cfg.DryRun).Msg("countersync starting")

	store, err := storage.NewBboltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	session, err := platform.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	p := platform.NewDiscordClient(session, log)
	defer p.Close()

	comp, err := bot.NewComponents(cfg, p, store, log)
	if err != nil {
		return err
	}

	bot.BinaryVersion = Version
	b, err := bot.New(cfg, session, p, store, comp, log)
	if err != nil {
		return fmt.Errorf("build bot: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return b.Run(ctx)
}

// syncCmd runs one sweep over the archived configuration and exits.
func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Restore the latest archived configuration, sweep every community once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := buildLogger(cfg)

			store, err := storage.NewBboltStore(cfg.DataDir)
			if err != nil {
				return err
			}
			defer store.Close()

			session, err := platform.NewSession(cfg.DiscordToken)
			if err != nil {
				return err
			}
			p := platform.NewDiscordClient(session, log)
			defer p.Close()

			comp, err := bot.NewComponents(cfg, p, store, log)
			if err != nil {
				return err
			}
			if _, found, err := comp.Snapshots.RestoreLatest(); err != nil {
				return fmt.Errorf("restore archive: %w", err)
			} else if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "no archived configuration; nothing to sync")
				return nil
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := openGateway(ctx, session, cfg.SyncStartupDelay); err != nil {
				return err
			}
			defer session.Close()

			res := comp.Sweeper.SweepAll(ctx, sweep.TriggerManual)
			fmt.Fprintf(cmd.OutOrStdout(), "sync complete: communities=%d renamed=%d skipped=%d elapsed=%s\n",
				len(res.Outcomes), res.Renamed(), res.Failed(), res.Elapsed)
			return nil
		},
	}
}

// openGateway opens the session and waits for Ready, then for settle so the
// guild presence and voice state arrive before counting.
func openGateway(ctx context.Context, session *discordgo.Session, settle time.Duration) error {
	ready := make(chan struct{})
	session.AddHandlerOnce(func(_ *discordgo.Session, _ *discordgo.Ready) { close(ready) })
	if err := session.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}

	timer := time.NewTimer(readyTimeout)
	defer timer.Stop()
	select {
	case <-ready:
	case <-timer.C:
		_ = session.Close()
		return fmt.Errorf("gateway not ready after %s", readyTimeout)
	case <-ctx.Done():
		_ = session.Close()
		return ctx.Err()
	}

	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}
	return nil
}

// deployCommandsCmd registers the slash commands with the application.
func deployCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy-commands",
		Short: "Register the slash commands (globally or in DISCORD_COMMAND_GUILD)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := buildLogger(cfg)

			if cfg.DiscordClientID == "" {
				log.Warn().Msg("DISCORD_CLIENT_ID is not set; skipping command deployment")
				return nil
			}

			session, err := platform.NewSession(cfg.DiscordToken)
			if err != nil {
				return err
			}
			defs := commands.Definitions()
			created, err := session.ApplicationCommandBulkOverwrite(cfg.DiscordClientID, cfg.DiscordCommandGuild, defs)
			if err != nil {
				return fmt.Errorf("deploy commands: %w", err)
			}

			scope := "global"
			if cfg.DiscordCommandGuild != "" {
				scope = "guild " + cfg.DiscordCommandGuild
			}
			log.Info().Int("count", len(created)).Str("scope", scope).Msg("commands deployed")
			fmt.Fprintf(cmd.OutOrStdout(), "deployed %d commands (%s)\n", len(created), scope)
			return nil
		},
	}
}

// snapshotCmd operates on the snapshot archive without connecting to Discord.
func snapshotCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and manage the configuration archive",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived exports, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store storage.Store) error {
				recs, err := store.ListSnapshots()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(recs) == 0 {
					fmt.Fprintln(out, "archive is empty")
					return nil
				}
				for _, rec := range recs {
					doc, err := snapshot.Decode(rec.Document)
					if err != nil {
						fmt.Fprintf(out, "%s  unreadable: %v\n", rec.TakenAt.Format(time.RFC3339), err)
						continue
					}
					fmt.Fprintf(out, "%s  counters=%d permissions=%d bytes=%d\n",
						rec.TakenAt.Format(time.RFC3339), len(doc.CounterConfigs), len(doc.PermissionConfigs), len(rec.Document))
				}
				return nil
			})
		},
	}

	export := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the latest archived export to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(store storage.Store) error {
				rec, err := store.LatestSnapshot()
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("archive is empty")
				}
				if err := snapshot.WriteFile(args[0], rec.Document); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote export from %s to %s\n", rec.TakenAt.Format(time.RFC3339), args[0])
				return nil
			})
		},
	}

	load := &cobra.Command{
		Use:   "load <file>",
		Short: "Validate a file and archive it as the latest export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, err := snapshot.Check(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return withStore(func(store storage.Store) error {
				if err := store.SaveSnapshot(storage.SnapshotRecord{TakenAt: time.Now().UTC(), Document: data}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "archived %s: counters=%d permissions=%d (set RESTORE_ON_START=true to apply)\n",
					args[0], len(doc.CounterConfigs), len(doc.PermissionConfigs))
				return nil
			})
		},
	}

	root.AddCommand(list, export, load)
	return root
}

// withStore opens the archive for the duration of fn.
func withStore(fn func(storage.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := storage.NewBboltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// healthcheckCmd exits 0 if the daemon's health endpoint answers.
func healthcheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check health endpoint and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			resp, err := http.Get("http://" + cfg.HealthAddr + "/healthz") //nolint:noctx
			if err != nil {
				fmt.Fprintf(os.Stderr, "healthcheck failed: %v\n", err)
				os.Exit(1)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				fmt.Fprintf(os.Stderr, "healthcheck returned %d\n", resp.StatusCode)
				os.Exit(1)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "healthy")
			return nil
		},
	}
}

// versionCmd prints the version and exits.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "countersync %s\n", Version)
		},
	}
}

// buildLogger constructs a zerolog.Logger based on config.
func buildLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var base zerolog.Logger
	if cfg.LogFormat == "text" {
		cw := zerolog.NewConsoleWriter()
		cw.Out = logger.NewRedactWriter(os.Stderr)
		base = zerolog.New(cw).Level(level).With().Timestamp().Logger()
	} else {
		base = zerolog.New(logger.NewRedactWriter(os.Stderr)).Level(level).With().Timestamp().Logger()
	}
	return base
}
