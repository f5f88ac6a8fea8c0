package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"glucowatch/internal/alerts"
	"glucowatch/internal/api"
	"glucowatch/internal/config"
	"glucowatch/internal/ingest"
	"glucowatch/internal/logging"
	"glucowatch/internal/monitor"
	"glucowatch/internal/notify"
	"glucowatch/internal/storage"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "glucowatch.yaml", "path to config file")
	flag.Parse()

	manager, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := manager.Get()
	logger := logging.NewLoggerWithFile(cfg.LogLevel, cfg.LogFile)
	logger.Info("glucowatch starting", "version", version, "config", manager.Path())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := store.Init(initCtx); err != nil {
		cancel()
		logger.Error("init store", "error", err)
		os.Exit(1)
	}
	cancel()

	notifier := notify.NewMulti(cfg.Notify, cfg.Alerting)
	logger.Info("notification channels configured", "count", notifier.Channels())
	alertMgr := alerts.NewManager(store, notifier, cfg.Notify, cfg.Alerting.StoreLimit, logger)
	mon := monitor.New(store, alertMgr, manager, logger)

	events := make(chan ingest.Event, cfg.Ingest.ChannelBuffer)
	ingest.StartWriter(ctx, store, events, logger)
	ingest.StartREST(ctx, manager, events, logger)
	ingest.StartKafka(ctx, manager, events, logger)

	api.Start(ctx, manager, mon, logger, version)

	stopWatch := make(chan struct{})
	go manager.Watch(3*time.Second, func(updated *config.Config) {
		logger.Info("config reloaded", "path", manager.Path())
	}, func(err error) {
		logger.Warn("config watch error", "error", err)
	}, stopWatch)
	defer close(stopWatch)

	go mon.Run(ctx)

	<-ctx.Done()
	logger.Info("glucowatch shutting down")
	alertMgr.Wait()
}
