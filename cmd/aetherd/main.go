// SPDX-License-Identifier: MIT

// aetherd is the radio daemon: it runs the Telegram bot, the per-chat
// radio sessions and the HTTP control surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/sync/errgroup"

	"github.com/aethradio/aether/internal/api"
	"github.com/aethradio/aether/internal/bot"
	"github.com/aethradio/aether/internal/cache"
	"github.com/aethradio/aether/internal/config"
	"github.com/aethradio/aether/internal/genre"
	"github.com/aethradio/aether/internal/health"
	xlog "github.com/aethradio/aether/internal/log"
	"github.com/aethradio/aether/internal/notify"
	"github.com/aethradio/aether/internal/radio"
	"github.com/aethradio/aether/internal/store"
	"github.com/aethradio/aether/internal/track"
	"github.com/aethradio/aether/internal/vote"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until config is loaded.
	xlog.Configure(xlog.Config{
		Level:   "info",
		Service: "aether",
		Version: version,
	})
	logger := xlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.invalid").
			Msg("invalid configuration")
	}

	xlog.Configure(xlog.Config{
		Level:   cfg.LogLevel,
		Service: "aether",
		Version: version,
	})

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Str("addr", cfg.ListenAddr).
		Msg("starting aetherd")
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)
	logger.Info().Msgf("→ Downloads: %s", cfg.DownloadsDir)
	logger.Info().Msgf("→ Catalog: %s", cfg.CatalogPath)
	if cfg.DryRun {
		logger.Warn().Msg("→ Dry run: Telegram transport disabled")
	}

	// Best-effort yt-dlp self-install; the PATH binary wins when present.
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		logger.Warn().Err(err).Msg("yt-dlp install failed, relying on PATH")
	}

	media, err := store.Open(cfg.DataDir)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "store.open_failed").
			Msg("could not open media store")
	}
	defer func() {
		if err := media.Close(); err != nil {
			logger.Warn().Err(err).Msg("media store close failed")
		}
	}()

	genres := genre.NewStore(cfg.CatalogPath)
	if err := genres.StartWatcher(ctx); err != nil {
		logger.Warn().Err(err).Msg("catalog watcher unavailable, reload on restart only")
	}

	var searches cache.Cache
	if cfg.RedisAddr != "" {
		redis, err := cache.NewRedis(cache.RedisConfig{Addr: cfg.RedisAddr}, xlog.WithComponent("cache"))
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "cache.redis_failed").
				Msg("could not connect to Redis")
		}
		defer func() { _ = redis.Close() }()
		searches = redis
	} else {
		searches = cache.NewMemory(5 * time.Minute)
	}

	source := track.NewYTDLP(track.YTDLPConfig{
		DownloadsDir:  cfg.DownloadsDir,
		MaxConcurrent: cfg.MaxConcurrentDLs,
	}, searches, media)

	var notifier notify.Notifier
	var acker bot.Acker
	var tgAPI *tgbotapi.BotAPI
	if cfg.DryRun {
		notifier = notify.NewNoop()
	} else {
		tgAPI, err = tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			logger.Fatal().
				Err(err).
				Str("event", "bot.auth_failed").
				Msg("could not authenticate with Telegram")
		}
		tg := notify.NewTelegram(tgAPI)
		notifier = tg
		acker = tg
	}

	orch := radio.New(source, notifier, genres, cfg)
	votes := vote.New(notifier, genres, vote.Config{
		Window:  cfg.VoteWindow,
		Refresh: cfg.VoteRefresh,
		Cleanup: cfg.VoteCleanup,
	}, orch.HandleVoteResolved)
	orch.SetVotes(votes)

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewStoreChecker(media))
	hm.RegisterChecker(health.NewDirChecker("downloads_dir", cfg.DownloadsDir))
	hm.RegisterChecker(health.NewCatalogChecker(func() int { return genres.Catalog().Len() }))
	hm.RegisterChecker(health.NewLastDownloadChecker(
		func() (time.Time, error) {
			rec, ok, err := media.LastDownload(context.Background())
			if err != nil || !ok {
				return time.Time{}, err
			}
			return rec.DownloadedAt, nil
		},
		func() int { return len(orch.Status()) },
		30*time.Minute,
	))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(orch, hm).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP control surface listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if tgAPI != nil {
		b := bot.New(tgAPI, notifier, acker, orch, votes, media)
		g.Go(func() error {
			err := b.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	err = g.Wait()

	// Orderly teardown: every session deletes its files before we exit.
	orch.StopAll()
	votes.StopAll()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}
