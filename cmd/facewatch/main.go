package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"facewatch/internal/alert"
	"facewatch/internal/api"
	"facewatch/internal/camera"
	"facewatch/internal/config"
	"facewatch/internal/logging"
	"facewatch/internal/notify"
	"facewatch/internal/pipeline"
	"facewatch/internal/recognize"
	"facewatch/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	manager, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("facewatch starting", "version", version, "config", manager.Path())

	if err := config.EnsureDirs(cfg); err != nil {
		logger.Error("prepare directories", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, err := storage.NewSink(cfg.Storage)
	if err != nil {
		logger.Error("open storage", "err", err)
		os.Exit(1)
	}
	if sink != nil {
		if err := sink.Init(ctx); err != nil {
			logger.Error("init storage", "err", err)
			os.Exit(1)
		}
		defer sink.Close()
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	detector := recognize.NewHTTPDetector(cfg.Recognition.Endpoint, cfg.Recognition.Timeout, cfg.Recognition.AnalysisEnabled)
	engine := recognize.NewEngine(detector, cfg.Recognition.RecognitionThreshold, logger)
	if err := engine.ReloadGallery(cfg.Gallery.Dir); err != nil {
		logger.Error("load gallery", "dir", cfg.Gallery.Dir, "err", err)
		os.Exit(1)
	}

	channel, err := notify.NewChannel(cfg.Notify)
	if err != nil {
		logger.Error("configure notifier", "err", err)
		os.Exit(1)
	}
	var notifier alert.Notifier
	if channel != nil {
		notifier = notify.NewDispatcher(channel, cfg.Notify, logger)
		logger.Info("notifications enabled", "channel", cfg.Notify.Channel)
	}

	history := alert.NewHistory(cfg.Alerts.StoreLimit)
	var alertSink alert.Sink
	if sink != nil {
		alertSink = sink
	}
	coord := alert.NewCoordinator(alert.Options{
		Cooldown:          cfg.Alerts.Cooldown,
		SoundEnabled:      cfg.Alerts.SoundEnabled,
		ScreenshotEnabled: cfg.Alerts.ScreenshotEnabled,
		ScreenshotDir:     cfg.Alerts.ScreenshotDir,
		AlertSound:        cfg.Alerts.AlertSound,
		UnknownAlertSound: cfg.Alerts.UnknownAlertSound,
	}, history, alertSink, notifier, &alert.ExecPlayer{Command: cfg.Alerts.SoundCommand}, logger)

	sup := camera.NewSupervisor(camera.OpenGoCV, logger)
	sup.Register(cfg.Cameras)
	sup.StartAll(ctx)
	defer sup.StopAll()

	pipe := pipeline.New(sup, engine, coord, cfg.Pipeline.TickInterval, logger)
	go pipe.Run(ctx)

	api.Start(ctx, manager, sup, engine, coord, pipe.Stats(), sink, logger, version)

	go manager.Watch(0, func(next *config.Config) {
		logger.Info("config reloaded", "path", manager.Path())
		engine.SetThreshold(next.Recognition.RecognitionThreshold)
		coord.SetCooldown(next.Alerts.Cooldown)
		coord.EnableSound(next.Alerts.SoundEnabled)
		coord.EnableScreenshots(next.Alerts.ScreenshotEnabled)
	}, func(err error) {
		logger.Error("config reload failed", "err", err)
	}, ctx.Done())

	<-ctx.Done()
	logger.Info("facewatch shutting down")
}
