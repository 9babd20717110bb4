package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-speech/internal/api"
	"github.com/loqalabs/loqa-speech/internal/audio"
	"github.com/loqalabs/loqa-speech/internal/bus"
	"github.com/loqalabs/loqa-speech/internal/config"
	"github.com/loqalabs/loqa-speech/internal/runtime"
	"github.com/loqalabs/loqa-speech/internal/tts"
	"github.com/loqalabs/loqa-speech/internal/voice"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
		warmup      bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&warmup, "warmup", false, "Load the engine at startup instead of on first request")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: runtime.ParseLevel(cfg.Telemetry.LogLevel)})).
		With(slog.String("service", cfg.ServiceName), slog.String("version", version))

	engine, err := tts.EngineByName(cfg.TTS.Engine)
	if err != nil {
		logger.Error("invalid engine", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, closeBus, err := bus.Open(ctx, cfg.Bus, cfg.ServiceName+"-tts", logger)
	if err != nil {
		logger.Error("failed to connect to bus", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeBus()

	svc := tts.NewService(tts.ServiceOptions{
		Engine:  engine,
		Backend: cfg.TTS.Mode,
		Loader:  tts.NewLoader(engine, backendFactory(cfg.TTS, logger), logger),
		Resolver: &voice.Resolver{
			DefaultReference: cfg.TTS.DefaultReference,
			ScratchDir:       cfg.TTS.ScratchDir,
			Loader:           audio.Loader{Transcoder: &audio.Transcoder{Path: cfg.TTS.FFmpegPath, TmpDir: cfg.TTS.ScratchDir}},
			Logger:           logger,
		},
		Events: events,
	}, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("engine close failed", slog.String("error", err.Error()))
		}
	}()

	if warmup {
		go func() {
			if err := svc.Warmup(ctx); err != nil {
				logger.Error("engine warmup failed", slog.String("error", err.Error()))
			}
		}()
	}

	rt := runtime.New(cfg, logger, api.NewSpeechHandler(svc, cfg.TTS.MaxUploadMB, cfg.TTS.UseReference, logger))
	if events != nil {
		rt.AddCheck("bus", events.Healthy)
	}

	logger.Info("starting tts", slog.String("engine", engine.Name), slog.String("backend", cfg.TTS.Mode))
	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func backendFactory(cfg config.TTSConfig, logger *slog.Logger) tts.Factory {
	return func(context.Context) (tts.Backend, error) {
		switch cfg.Mode {
		case "worker":
			return tts.NewWorker(cfg.Command, logger)
		default:
			return tts.NewMockBackend(cfg.MockSpeakers, cfg.MockSampleRate), nil
		}
	}
}
