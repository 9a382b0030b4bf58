package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/tipshield/internal/api"
	"github.com/dgnsrekt/tipshield/internal/browser"
	"github.com/dgnsrekt/tipshield/internal/cdpcontrol"
	"github.com/dgnsrekt/tipshield/internal/config"
	"github.com/dgnsrekt/tipshield/internal/controller"
	"github.com/dgnsrekt/tipshield/internal/cosmetic"
	"github.com/dgnsrekt/tipshield/internal/kvstore"
	"github.com/dgnsrekt/tipshield/internal/netutil"
	"github.com/dgnsrekt/tipshield/internal/notify"
	"github.com/dgnsrekt/tipshield/internal/relay"
	"github.com/dgnsrekt/tipshield/internal/rewards"
	"github.com/dgnsrekt/tipshield/internal/storage"
)

const tipLogBufferSize = 256

func main() {
	cfg, err := config.LoadController()
	if err != nil {
		slog.Error("failed to load controller config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("controller config loaded",
		"bind_addr", cfg.BindAddr,
		"tab_url_filter", cfg.TabURLFilter,
		"eval_timeout_ms", cfg.EvalTimeoutMS,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"data_dir", cfg.DataDir,
		"store_backend", cfg.StoreBackend,
		"launch_browser", cfg.LaunchBrowser,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("failed to create data dir", "data_dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	kv, err := kvstore.Open(cfg.StoreBackend, cfg.DataDir)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}()

	tipLog := storage.NewWriterRegistry(cfg.DataDir, "tips", tipLogBufferSize, cfg.TipLogMaxMB)
	defer func() {
		if err := tipLog.Close(); err != nil {
			slog.Warn("tip log close failed", "error", err)
		}
	}()

	broker := relay.NewBroker()
	opts := rewards.Options{TipLog: tipLog, Broker: broker}
	if cfg.NotifyURL != "" {
		opts.Notifier = notify.New(&http.Client{Timeout: 10 * time.Second}, cfg.NotifyURL)
	}
	rewardsSvc := rewards.NewService(kv, opts)
	seedRewards(rewardsSvc, cfg.RewardsSeed)

	var launcher *browser.Launcher
	if cfg.LaunchBrowser {
		launcher = browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			StartURL:   cfg.StartURL,
			ProfileDir: cfg.ProfileDir,
		})
		if err := launcher.Launch(context.Background()); err != nil {
			slog.Error("failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	cdpClient := cdpcontrol.NewClient(cfg.ControllerCDPURL(), cfg.TabURLFilter, time.Duration(cfg.EvalTimeoutMS)*time.Millisecond)
	if err := cdpClient.Connect(context.Background()); err != nil {
		// Filter storage and messaging work without a browser; tab
		// operations reconnect on demand.
		slog.Warn("CDP controller not connected", "cdp_url", cfg.ControllerCDPURL(), "error", err)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Debug("CDP client close failed", "error", err)
		}
	}()

	svc := controller.NewService(cdpClient, cosmetic.NewStore(kv), rewardsSvc)
	h := api.NewServer(svc, broker)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("controller listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("controller server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("controller shutdown failed", "error", err)
	}
	rewardsSvc.Wait()
	published, dropped := broker.Stats()
	slog.Info("controller stopped", "tips_published", published, "tips_dropped", dropped)
}

func seedRewards(svc *rewards.Service, path string) {
	if path == "" {
		return
	}
	seed, err := config.LoadRewardsSeed(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no rewards seed file", "path", path)
		return
	}
	if err != nil {
		slog.Warn("rewards seed ignored", "path", path, "error", err)
		return
	}
	if err := svc.Seed(context.Background(), *seed); err != nil {
		slog.Warn("rewards seed failed", "path", path, "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
