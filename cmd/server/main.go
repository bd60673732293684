package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"github.com/ricirt/pigeonpost/internal/app"
	"github.com/ricirt/pigeonpost/internal/config"
	"github.com/ricirt/pigeonpost/internal/db"
	"github.com/ricirt/pigeonpost/internal/logging"
	"github.com/ricirt/pigeonpost/internal/worker"
)

func main() {
	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	// ---- database ----
	ctx := context.Background()
	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}
	defer a.Close()

	// ---- scheduled deploys ----
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	var wg sync.WaitGroup
	if cfg.DeploySchedule != "" {
		sched, err := worker.NewSchedulerWorker(a.Deployer, cfg.DeploySchedule, logger.Named("scheduler"))
		if err != nil {
			logger.Fatal("invalid deploy schedule", zap.Error(err))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(workerCtx)
		}()
	} else {
		logger.Info("deploy schedule disabled; deploys run only on demand")
	}

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      a.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("sd_notify ready failed", zap.Error(err))
	} else if ok {
		logger.Debug("notified systemd")
	}

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")
	daemon.SdNotify(false, daemon.SdNotifyStopping) //nolint:errcheck

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop scheduling and let a running deploy finish.
	cancelWorkers()
	wg.Wait()

	logger.Info("server stopped cleanly")
}
