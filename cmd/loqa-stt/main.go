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
	"github.com/loqalabs/loqa-speech/internal/bus"
	"github.com/loqalabs/loqa-speech/internal/config"
	"github.com/loqalabs/loqa-speech/internal/runtime"
	"github.com/loqalabs/loqa-speech/internal/stt"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
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

	recognizer, err := newRecognizer(cfg.STT)
	if err != nil {
		logger.Error("failed to create recognizer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	guesser, err := stt.NewGuesser(cfg.STT.SegmentLanguages)
	if err != nil {
		logger.Error("failed to build segment language detector", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, closeBus, err := bus.Open(ctx, cfg.Bus, cfg.ServiceName+"-stt", logger)
	if err != nil {
		logger.Error("failed to connect to bus", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeBus()

	svc := stt.NewService(stt.ServiceOptions{
		Recognizer: recognizer,
		Backend:    cfg.STT.Mode,
		Guesser:    guesser,
		VADFilter:  cfg.STT.VADFilter,
		Events:     events,
	}, logger)

	rt := runtime.New(cfg, logger, api.NewTranscriptionHandler(svc, cfg.STT.MaxUploadMB, logger))
	if events != nil {
		rt.AddCheck("bus", events.Healthy)
	}

	logger.Info("starting stt", slog.String("backend", cfg.STT.Mode), slog.String("model", cfg.STT.ModelPath))
	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func newRecognizer(cfg config.STTConfig) (stt.Recognizer, error) {
	switch cfg.Mode {
	case "exec":
		return stt.NewExecRecognizer(cfg)
	default:
		return stt.NewMockRecognizer(), nil
	}
}
