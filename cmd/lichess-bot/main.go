// Command lichess-bot wires together the Remote Client (C1), Challenge
// Policy (C3), Game Worker (C4), Control Loop (C5), Matchmaker (C6), and
// Archiver (C7) into a single long-running process, per SPEC_FULL §5 and
// §6's startup contract and exit codes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/lichess-bot-go/internal/activeworkers"
	"github.com/park285/lichess-bot-go/internal/archive"
	"github.com/park285/lichess-bot-go/internal/client"
	"github.com/park285/lichess-bot-go/internal/config"
	"github.com/park285/lichess-bot-go/internal/control"
	"github.com/park285/lichess-bot-go/internal/engine"
	"github.com/park285/lichess-bot-go/internal/errs"
	"github.com/park285/lichess-bot-go/internal/matchmaker"
	"github.com/park285/lichess-bot-go/internal/obslog"

	"github.com/redis/go-redis/v9"
)

// Exit codes per SPEC_FULL §6.
const (
	exitOK                = 0
	exitConfigError       = 1
	exitAuthFailure       = 2
	exitEngineUnsupported = 3
	exitNotBotAccount     = 4
)

// shutdownDrain bounds how long the Control Loop waits for in-flight games
// to finish naturally before force-cancelling them (§5).
const shutdownDrain = 30 * time.Second

// engineProbeTimeout bounds the startup spawn-and-quit probe below.
const engineProbeTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := os.Getenv("LICHESSBOT_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfigError
	}

	if err := obslog.Init(obslog.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		ToConsole:  true,
		ToFile:     true,
		FilePath:   filepath.Join("logs", "lichess-bot.log"),
		ShowCaller: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		return exitConfigError
	}
	logger := obslog.L()
	defer logger.Sync()

	httpClient := client.NewClient(cfg.Service.BaseURL, cfg.Token)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profile, err := httpClient.Profile(ctx)
	if err != nil {
		logger.Error("profile_check_failed", zap.Error(err))
		return exitAuthFailure
	}
	if !strings.EqualFold(profile.Title, "BOT") {
		logger.Error("account_not_bot", zap.String("account_id", profile.ID), zap.String("title", profile.Title))
		return exitNotBotAccount
	}
	logger.Info("profile_verified", zap.String("account_id", profile.ID))

	if err := probeEngine(ctx, cfg.Engine); err != nil {
		logger.Error("engine_probe_failed", obslog.KindField(errs.Kind(err)), zap.Error(err))
		return exitEngineUnsupported
	}
	logger.Info("engine_probe_succeeded", zap.String("path", cfg.Engine.Path), zap.String("protocol", cfg.Engine.Protocol))

	archiver := archive.New(cfg.ArchivePath)
	defer archiver.Close()

	var redisClient *redis.Client
	if strings.TrimSpace(cfg.ActiveWorkers.RedisURL) != "" {
		opts, err := redis.ParseURL(cfg.ActiveWorkers.RedisURL)
		if err != nil {
			logger.Error("redis_url_invalid", zap.Error(err))
			return exitConfigError
		}
		redisClient = redis.NewClient(opts)
	}
	registry := activeworkers.New(redisClient)

	loop := control.New(httpClient, cfg, registry, archiver, profile.ID)

	if cfg.Matchmaking.Enabled {
		mm := matchmaker.New(cfg.Matchmaking, loop, time.Now().UnixNano())
		loop.SetMatchmaker(mm)
		go func() {
			if err := mm.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("matchmaker_stopped", zap.Error(err))
			}
		}()
	}

	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-loopErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("control_loop_exited", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDrain+5*time.Second)
	defer cancel()
	loop.Shutdown(shutdownCtx, shutdownDrain)

	logger.Info("shutdown_complete")
	return exitOK
}

// probeEngine spawns the configured engine binary once, completes its
// handshake, and quits it immediately, so a misconfigured or unsupported
// engine fails the process at startup (§6, §7) rather than surfacing per
// game inside a Worker's Opening phase.
func probeEngine(ctx context.Context, cfg config.EngineConfig) error {
	probeCtx, cancel := context.WithTimeout(ctx, engineProbeTimeout)
	defer cancel()

	adapter, err := engine.Spawn(probeCtx, cfg.Path, cfg.Args, cfg.Protocol, cfg.Options)
	if err != nil {
		return err
	}
	quitCtx, quitCancel := context.WithTimeout(context.Background(), 6*time.Second)
	defer quitCancel()
	return adapter.Quit(quitCtx)
}
