package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"memebox/internal/assetserver"
	"memebox/internal/assetstore"
	"memebox/internal/bot"
	"memebox/internal/bot/telegram"
	"memebox/internal/catalogue"
	"memebox/internal/config"
	"memebox/internal/daemon"
	"memebox/internal/deps"
	"memebox/internal/history"
	"memebox/internal/ingest"
	"memebox/internal/logging"
	"memebox/internal/lookup"
	"memebox/internal/notifications"
	"memebox/internal/transcode"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the memebox bot and blocks until SIGINT/SIGTERM or a fatal
// component failure.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.RequireBot(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	outputs := []string{"stdout"}
	if file := strings.TrimSpace(cfg.Logging.File); file != "" {
		outputs = append(outputs, file)
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logDependencySnapshot(logger, cfg)

	notifier := notifications.NewService(cfg)
	reportRepairs(signalCtx, logger, notifier, cfg.Paths.CatalogueFile)

	assets, err := assetstore.Open(cfg.Paths.AssetsDir, logger)
	if err != nil {
		return fmt.Errorf("open asset store: %w", err)
	}
	registry, err := catalogue.Open(cfg.Paths.CatalogueFile, assets, logger)
	if err != nil {
		logger.Error("open catalogue", logging.Error(err))
		return err
	}
	auditCatalogue(logger, registry.Snapshot(), assets)

	historyStore, err := history.Open(cfg.HistoryDBPath())
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer historyStore.Close()

	client, err := telegram.Connect(cfg, logger)
	if err != nil {
		return err
	}

	transcoder := transcode.New(transcode.Options{
		Binary:      cfg.FFmpegBinary(),
		Bitrate:     cfg.Transcode.Bitrate,
		SampleRate:  cfg.Transcode.SampleRate,
		Channels:    cfg.Transcode.Channels,
		Timeout:     cfg.TranscodeTimeout(),
		MaxParallel: cfg.Transcode.MaxParallel,
		Logger:      logger,
	})
	pipeline, err := ingest.New(ingest.Options{
		Registry:     registry,
		Store:        assets,
		Transcoder:   transcoder,
		Downloader:   client,
		Recorder:     historyStore,
		Notifier:     notifier,
		AwaitTimeout: cfg.IngestTimeout(),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create ingestion pipeline: %w", err)
	}

	engine, err := lookup.New(lookup.Options{
		Registry:    registry,
		Assets:      assets,
		BaseURL:     cfg.Server.BaseURL,
		AssetPrefix: cfg.Server.AssetPrefix,
		PageSize:    cfg.Bot.MenuPageSize,
	})
	if err != nil {
		return fmt.Errorf("create lookup engine: %w", err)
	}

	dispatcher, err := bot.New(bot.Options{
		Messenger:          client,
		Lookup:             engine,
		Pipeline:           pipeline,
		Registry:           registry,
		Assets:             assets,
		BotName:            client.BotName(),
		InlineCacheSeconds: cfg.Bot.InlineCacheSeconds,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	server, err := assetserver.New(assetserver.Options{
		Listen:   cfg.Server.Listen,
		Prefix:   cfg.Server.AssetPrefix,
		Assets:   assets,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create asset server: %w", err)
	}

	d, err := daemon.New(daemon.Options{
		LockPath:   cfg.DaemonLockPath(),
		Dispatcher: dispatcher,
		Source:     client,
		Server:     server,
		Watcher:    registry,
		History:    historyStore,
		Assets:     assets,
		Pipeline:   pipeline,
		Notifier:   notifier,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	logger.Info("memebox starting",
		logging.String("bot", client.BotName()),
		logging.String("listen", cfg.Server.Listen),
		logging.String("base_url", cfg.Server.BaseURL),
		logging.Int("memes", registry.Snapshot().Len()),
	)
	if err := d.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("memebox shutting down")
	return nil
}

// reportRepairs inspects the catalogue file before it is normalized on load
// and publishes a notification when entries will be rewritten or dropped.
func reportRepairs(ctx context.Context, logger *slog.Logger, notifier notifications.Service, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to read catalogue for repair check", logging.Error(err))
		}
		return
	}
	raw, err := catalogue.Decode(data)
	if err != nil {
		return
	}
	normalized, changed := catalogue.Normalize(raw)
	if !changed {
		return
	}
	repairs := len(catalogue.Audit(raw, nil)) - len(catalogue.Audit(normalized, nil))
	if err := notifier.Publish(ctx, notifications.EventCatalogueRepaired, notifications.Payload{
		"count": repairs,
	}); err != nil {
		logger.Debug("repair notification failed", logging.Error(err))
	}
}

func auditCatalogue(logger *slog.Logger, snap catalogue.Catalogue, assets catalogue.AssetChecker) {
	for _, issue := range catalogue.Audit(snap, assets) {
		logging.WarnWithContext(logger, "catalogue entry needs attention", "catalogue_issue",
			logging.String(logging.FieldCategory, issue.Category),
			logging.String(logging.FieldMemeKey, issue.Key),
			logging.String("problem", issue.Problem),
			logging.String(logging.FieldErrorHint, "run 'memebox catalogue check'"),
			logging.String(logging.FieldImpact, "the entry cannot be played until fixed"),
		)
	}
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	ffmpeg := deps.CheckFFmpeg(cfg.FFmpegBinary())
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ffmpeg_available", ffmpeg.Available),
		logging.String("ffmpeg_binary", ffmpeg.Command),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("assets_dir", cfg.Paths.AssetsDir),
		logging.String("catalogue", cfg.Paths.CatalogueFile),
	)
}
