package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/api"
	"github.com/sis061/pilltime-sub000/internal/auth"
	"github.com/sis061/pilltime-sub000/internal/config"
	"github.com/sis061/pilltime-sub000/internal/notify"
	"github.com/sis061/pilltime-sub000/internal/service"
	"github.com/sis061/pilltime-sub000/internal/storage"
)

func main() {
	cfg := config.Load()

	var zl *zap.Logger
	var err error
	if cfg.Env == "production" {
		zl, err = zap.NewProduction()
	} else {
		zl, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zl.Sync()
	logger := internal.NewZapLogger(zl.Sugar())

	store, err := storage.NewStore(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init storage: %v", err)
	}
	defer store.Close()

	cache := service.NewIndicatorCache()
	medicines := service.NewMedicineService(store, cache, cfg.WindowDays, logger)
	indicator := service.NewIndicatorService(store, cache, language.Und, logger)
	transport := notify.NewLogTransport(logger)
	dispatcher := service.NewDispatcher(store, transport, cache, logger)

	var provider auth.Provider
	if cfg.Env == "development" {
		provider = auth.NewLocalAuthProvider(cfg.LocalToken, logger)
	} else {
		provider = auth.NewRemoteAuthProvider(cfg.AuthServiceURL, logger)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	app := api.NewApp(logger, medicines, indicator)
	api.RegisterRoutes(r, app, provider, cfg)

	// The dispatch scheduler runs on its own periodic trigger, concurrently
	// with user-driven writes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(cfg.DispatchInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				res := dispatcher.Scan(ctx, now)
				if res.OnTime > 0 || res.Reminders > 0 || res.Promoted > 0 {
					logger.Infof("dispatch: on_time=%d reminders=%d promoted=%d errors=%d",
						res.OnTime, res.Reminders, res.Promoted, res.SendErrors)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	logger.Infof("Server running on :8088 (backend=%s)", cfg.DBType)
	if err := r.Run(":8088"); err != nil {
		logger.Fatalf("failed to start server: %v", err)
	}
}
