package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"perfmetrics/internal/api"
	"perfmetrics/internal/app"
	"perfmetrics/internal/config"
	"perfmetrics/internal/scheduler"
	"perfmetrics/internal/util"
)

func main() {
	cfgPath := flag.String("config", config.Path(), "path to the YAML config file")
	refreshOnStart := flag.Bool("refresh-on-start", false, "refresh the configured symbols once at startup")
	flag.Parse()

	// Load config.
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("initializing engine: %v", err)
	}
	defer a.Close()

	// Daily refresh of the configured universe.
	sched := scheduler.New(ctx, a.Engine, a.Sweeper(), cfg.Refresh.Symbols, a.Clock.Location(), logger)
	if cfg.Refresh.Schedule != "" && len(cfg.Refresh.Symbols) > 0 {
		if err := sched.Register(cfg.Refresh.Schedule); err != nil {
			log.Fatalf("scheduling refresh: %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}
	if *refreshOnStart && len(cfg.Refresh.Symbols) > 0 {
		go sched.RunNow()
	}

	srv := api.NewServer(cfg.Server.Addr(), a.Engine, logger)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down perfmetrics server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
