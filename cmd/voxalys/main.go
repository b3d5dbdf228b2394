// Command voxalys is the speech-to-text pipeline orchestrator: it serves
// the one-shot REST endpoint and the streaming websocket protocol over a
// configurable transcription pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxalys/voxalys/internal/config"
	"github.com/voxalys/voxalys/internal/health"
	"github.com/voxalys/voxalys/internal/httpapi"
	"github.com/voxalys/voxalys/internal/observe"
	"github.com/voxalys/voxalys/internal/pipeline"
	"github.com/voxalys/voxalys/internal/pipeline/plugin"
	"github.com/voxalys/voxalys/internal/session"
	"github.com/voxalys/voxalys/internal/stage/remote"
	"github.com/voxalys/voxalys/internal/streaming"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxalys: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxalys: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxalys starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"pipeline_mode", cfg.Mode(),
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxalys"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Pipeline engine ───────────────────────────────────────────────────────
	var (
		engine      *pipeline.Engine
		closeEngine func() error
	)
	switch cfg.Mode() {
	case config.ModeRemote:
		engine, closeEngine, err = remote.BuildEngine(ctx, cfg)
	default:
		engine, err = plugin.BuildEngine(cfg)
	}
	if err != nil {
		slog.Error("failed to build pipeline engine", "err", err)
		return 1
	}
	if closeEngine != nil {
		defer func() {
			if err := closeEngine(); err != nil {
				slog.Warn("engine close error", "err", err)
			}
		}()
	}
	slog.Info("pipeline ready", "stages", engine.StageNames())

	// ── Application layer ─────────────────────────────────────────────────────
	uc := session.New(engine, cfg.Audio.DefaultSampleRateHz,
		session.WithCapabilities(session.Capabilities{
			DefaultLanguage:    cfg.Asr.DefaultLanguage,
			SupportedLanguages: cfg.Asr.SupportedLanguages,
		}),
	)
	driver := streaming.NewDriver(uc,
		streaming.WithMaxMessageBytes(cfg.Streaming.MaxMessageBytes),
	)

	// ── HTTP routes ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	httpapi.New(uc, logger).Register(mux)
	mux.Handle("GET /v1/stream", driver.Handler())
	mux.Handle("GET /metrics", observe.MetricsHandler())
	health.New(health.Checker{
		Name:  "pipeline",
		Check: func(context.Context) error { return nil },
	}).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
