package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/clipfetch/clipfetch/internal/api"
	"github.com/clipfetch/clipfetch/internal/bot"
	"github.com/clipfetch/clipfetch/internal/config"
	"github.com/clipfetch/clipfetch/internal/history"
	"github.com/clipfetch/clipfetch/internal/pipeline"
	"github.com/clipfetch/clipfetch/internal/scheduler"
	"github.com/clipfetch/clipfetch/internal/session"
	"github.com/clipfetch/clipfetch/internal/store"
	"github.com/clipfetch/clipfetch/internal/telegram"
	"github.com/clipfetch/clipfetch/internal/ytdlp"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("clipfetch %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting clipfetch",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	files, err := store.New(cfg.Storage.DownloadsDir, logger)
	if err != nil {
		logger.Error("failed to prepare downloads directory", "error", err)
		os.Exit(1)
	}

	acquirer, err := ytdlp.NewClient(cfg.Fetch, logger)
	if err != nil {
		logger.Error("yt-dlp is not available", "error", err)
		os.Exit(1)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Error("failed to authorize bot", "error", err)
		os.Exit(1)
	}
	logger.Info("authorized", "username", botAPI.Self.UserName)

	msgr := telegram.NewClient(botAPI, telegram.Config{
		VideoTimeout: cfg.Delivery.VideoTimeout,
		AudioTimeout: cfg.Delivery.AudioTimeout,
		CaptionMax:   cfg.Limits.CaptionMax,
	}, logger)

	hist, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		os.Exit(1)
	}
	defer hist.Close()

	sessions := session.NewManager(nil)
	sched := scheduler.New(cfg.Limits.MaxConcurrent, logger)
	runner := pipeline.NewRunner(acquirer, files, msgr, sessions, hist, cfg.Limits, logger)
	b := bot.New(botAPI, msgr, sessions, sched, runner, cfg.Telegram.PollTimeout, logger)

	router := api.NewRouter(api.NewHandler(sched, hist, logger), logger)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Stop the update loop and cancel in-flight downloads; their
	// finalizers still release slots and clean up working files.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("stopped")
}
