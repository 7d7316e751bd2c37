package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/balsam/internal/config"
	"github.com/mamadbah2/balsam/internal/device/camera"
	"github.com/mamadbah2/balsam/internal/repository/sheets"
	"github.com/mamadbah2/balsam/internal/scheduler"
	"github.com/mamadbah2/balsam/internal/server/handlers"
	"github.com/mamadbah2/balsam/internal/server/router"
	inventorysvc "github.com/mamadbah2/balsam/internal/service/inventory"
	"github.com/mamadbah2/balsam/internal/service/notify"
	reportingsvc "github.com/mamadbah2/balsam/internal/service/reporting"
	"github.com/mamadbah2/balsam/internal/service/scanning"
	inventoryclient "github.com/mamadbah2/balsam/pkg/clients/inventory"
	"github.com/mamadbah2/balsam/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(os.Getenv("LOG_LEVEL")))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := notify.NewFeed(0, baseLogger.Named("svc.notify"))
	gateway := inventoryclient.NewClient(cfg.API)
	store := inventorysvc.NewStore(gateway, cfg.Session.UserID, feed, baseLogger.Named("svc.inventory"))

	loadCtx, cancelLoad := context.WithTimeout(ctx, cfg.API.Timeout)
	if err := store.Load(loadCtx); err != nil {
		baseLogger.Warn("initial inventory load failed, waiting for next resync", zap.Error(err))
	}
	cancelLoad()

	var reportingSvc *reportingsvc.Service
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		reportingSvc = reportingsvc.NewService(sheetsRepo, baseLogger.Named("svc.reporting"))
	} else {
		baseLogger.Warn("google sheets not configured, inventory export disabled")
		reportingSvc = reportingsvc.NewService(nil, baseLogger.Named("svc.reporting"))
	}

	var provider camera.Provider = camera.Unavailable{}
	if cfg.Camera.FramesDir != "" {
		provider = camera.NewDirectoryProvider(cfg.Camera.FramesDir)
		baseLogger.Info("camera frames replayed from directory", zap.String("dir", cfg.Camera.FramesDir))
	} else {
		baseLogger.Warn("no camera provider wired, live and snapshot scans will wait for a device")
	}
	cameras := camera.NewManager(provider, cfg.Camera, baseLogger.Named("device.camera"))

	coordinator := scanning.NewCoordinator(ctx, *cfg, scanning.Deps{
		Cameras:    cameras,
		Dispatcher: store,
		Notifier:   feed,
		Logger:     baseLogger.Named("svc.scanning"),
	})
	defer coordinator.Close()

	engine := router.New(
		handlers.NewInventoryHandler(store, reportingSvc, baseLogger.Named("handlers.inventory")),
		handlers.NewScanHandler(coordinator, feed, baseLogger.Named("handlers.scan")),
		baseLogger.Named("router"),
	)

	sched := scheduler.NewScheduler(*cfg, store, reportingSvc, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
