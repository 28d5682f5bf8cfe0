package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ctxpack/ctxpack/internal/adapters/content"
	"github.com/ctxpack/ctxpack/internal/adapters/git"
	"github.com/ctxpack/ctxpack/internal/adapters/storage"
	"github.com/ctxpack/ctxpack/internal/adapters/watcher"
	"github.com/ctxpack/ctxpack/internal/config"
	"github.com/ctxpack/ctxpack/internal/diff"
	"github.com/ctxpack/ctxpack/internal/domain/events"
	"github.com/ctxpack/ctxpack/internal/generate"
	"github.com/ctxpack/ctxpack/internal/hub"
	httpserver "github.com/ctxpack/ctxpack/internal/server/http"
	"github.com/ctxpack/ctxpack/internal/session"
)

var (
	serveHost string
	servePort int
	serveDB   string
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ctxpack server",
	Long: `Run the ctxpack server: a REST API over sessions and their derived
artifacts, plus a WebSocket event stream on /ws for tree changes, stale
entries and diff progress.

Example:
  ctxpack serve
  ctxpack serve --port 9000
  ctxpack serve --db /tmp/ctxpack.db`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default: 127.0.0.1)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default: 8930)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "storage path (default: ~/.ctxpack/ctxpack.db)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveDB != "" {
		cfg.Storage.Path = serveDB
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg)

	log.Info().
		Str("version", version).
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Path).
		Msg("starting ctxpack")

	persist, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = persist.Close() }()

	eventHub := hub.New()
	if err := eventHub.Start(); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}
	if verbose {
		eventHub.Subscribe(hub.NewLogSubscriber("event-log", func(e events.Event) {
			log.Debug().Str("event_type", string(e.Type())).Str("session_id", e.GetSessionID()).Msg("event published")
		}))
	}

	store := session.NewStore(persist, eventHub)
	if err := store.Load(); err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	resolver := git.NewResolver(cfg.Git.Command)
	aggregator := diff.NewAggregator(resolver, cfg.Diff.Concurrency, eventHub)
	reader := content.NewReader(cfg.Limits.MaxFileSizeKB)
	generator := generate.New(reader, cfg.ExcludeFunc())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var staleWatcher *watcher.Watcher
	if cfg.Watcher.Enabled {
		staleWatcher = watcher.NewWatcher(store, cfg.Watcher.DebounceMS)
		if err := staleWatcher.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("stale-entry watcher unavailable")
			staleWatcher = nil
		} else {
			eventHub.Subscribe(staleWatcher)
		}
	}

	server := httpserver.New(cfg.Server.Host, cfg.Server.Port, store, aggregator, generator, eventHub, cfg.ExcludeFunc())
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	cancel()

	if err := server.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping server")
	}
	if staleWatcher != nil {
		if err := staleWatcher.Stop(); err != nil {
			log.Error().Err(err).Msg("error stopping watcher")
		}
	}
	if err := eventHub.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping event hub")
	}
	store.Close()

	log.Info().Msg("ctxpack stopped")
	return nil
}
