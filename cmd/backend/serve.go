package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/sessiondesk/external/audio"
	configloader "github.com/foxseedlab/sessiondesk/external/config"
	discordimpl "github.com/foxseedlab/sessiondesk/external/discord"
	"github.com/foxseedlab/sessiondesk/external/draftstore"
	"github.com/foxseedlab/sessiondesk/external/grammar"
	repositoryimpl "github.com/foxseedlab/sessiondesk/external/repository"
	"github.com/foxseedlab/sessiondesk/external/server"
	transcriberimpl "github.com/foxseedlab/sessiondesk/external/transcriber"
	webhookimpl "github.com/foxseedlab/sessiondesk/external/webhook"
	"github.com/foxseedlab/sessiondesk/internal/config"
	"github.com/foxseedlab/sessiondesk/internal/desk"
	"github.com/foxseedlab/sessiondesk/internal/discord"
	"github.com/foxseedlab/sessiondesk/internal/metrics"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	discordConnectTimeout = 20 * time.Second
	injectorShutdownLimit = 30 * time.Second
	notifierEventBuffer   = 64
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the session controller and host transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("startup: loading configuration")
			cfg, err := configloader.Load()
			if err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}
			initLogger(cfg)
			slog.Info("startup: configuration loaded", "env", cfg.Env, "speech_mode", cfg.SpeechMode)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	draftstore.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	discordimpl.RegisterDI(injector)
	metrics.RegisterDI(injector)
	desk.RegisterDI(injector)
	grammar.RegisterDI(injector)
	server.RegisterDI(injector)

	return injector
}

func runServe(ctx context.Context, cfg *config.Config) error {
	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)
	defer shutdown(injector)

	manager, err := do.Invoke[*desk.Manager](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve desk manager: %w", err)
	}
	recorder, err := do.Invoke[*metrics.Recorder](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve metrics recorder: %w", err)
	}
	detach := manager.Bus().Attach("", recorder)
	defer detach()

	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve http server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.NotificationsEnabled() {
		if err := startNotifier(gctx, g, injector, manager, cfg.DiscordNotifyChannelID); err != nil {
			return err
		}
	}
	if cfg.VoiceGrammarPath != "" {
		watcher, err := do.Invoke[*grammar.Watcher](injector)
		if err != nil {
			return fmt.Errorf("failed to resolve grammar watcher: %w", err)
		}
		g.Go(func() error { return watcher.Run(gctx) })
	}

	slog.Info("startup: serving", "addr", cfg.HTTPAddr)
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("shutting down")
	return nil
}

func startNotifier(ctx context.Context, g *errgroup.Group, injector do.Injector, manager *desk.Manager, channelID string) error {
	dc, err := do.Invoke[discord.Client](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve discord client: %w", err)
	}
	notifier, err := do.Invoke[*discord.Notifier](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve discord notifier: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, discordConnectTimeout)
	defer cancel()
	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		return fmt.Errorf("discord connect failed: %w", err)
	}
	channelName, err := dc.ResolveChannelName(connectCtx, channelID)
	if err != nil {
		_ = dc.Close()
		return fmt.Errorf("discord notify channel: %w", err)
	}
	slog.Info("startup: discord connected", "channel", channelName)

	events, unsubscribe := manager.Bus().Subscribe("", notifierEventBuffer)
	g.Go(func() error {
		defer unsubscribe()
		defer func() {
			if err := dc.Close(); err != nil {
				slog.Error("discord close failed", "error", err)
			}
		}()
		return notifier.Run(ctx, events)
	})
	return nil
}

// shutdown stops services in reverse dependency order, so desks flush
// their final snapshots before the stores close.
func shutdown(injector do.Injector) {
	ctx, cancel := context.WithTimeout(context.Background(), injectorShutdownLimit)
	defer cancel()
	if report := injector.ShutdownWithContext(ctx); report != nil && !report.Succeed {
		slog.Error("dependency shutdown failed", "error", report.Error())
	}
}
