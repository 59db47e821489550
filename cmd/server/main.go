package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"erp-sync-service/internal/api"
	"erp-sync-service/internal/config"
	"erp-sync-service/internal/database"
	"erp-sync-service/internal/erp"
	"erp-sync-service/internal/logger"
	"erp-sync-service/internal/store"
	"erp-sync-service/internal/sync"
	"erp-sync-service/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load Config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting ERP Sync Service")

	// Init State Store
	db, err := database.Open(cfg.StateStorage)
	if err != nil {
		logger.Log.Fatal("Failed to connect to state store", zap.Error(err))
	}
	stateStore := store.NewMySQLStore(db)
	defer stateStore.Close()

	if err := stateStore.Migrate(context.Background()); err != nil {
		logger.Log.Fatal("Failed to migrate state store", zap.Error(err))
	}

	metrics, err := telemetry.New()
	if err != nil {
		logger.Log.Fatal("Failed to init metrics", zap.Error(err))
	}

	// Init Sync Engine
	creds := erp.Credentials{
		CustomerCode: cfg.ERP.CustomerCode,
		CompanyCode:  cfg.ERP.CompanyCode,
		APIKey:       cfg.ERP.APIKey,
	}
	client := erp.NewClient(erp.Config{
		URL:              cfg.ERP.URL,
		Timeout:          cfg.ERP.Timeout,
		MaxResponseBytes: cfg.ERP.MaxResponseBytes,
	})
	engine := sync.NewEngine(stateStore, client, sync.Options{
		Credentials:     creds,
		DefaultPageSize: cfg.Sync.DefaultPageSize,
		BatchInsertSize: cfg.Sync.BatchInsertSize,
		MaxPages:        cfg.Sync.MaxPages,
	}, metrics)

	var guard sync.JobGuard = sync.NewLocalGuard()
	if cfg.Redis.Addr != "" {
		redisGuard, err := sync.NewRedisGuard(cfg.Redis)
		if err != nil {
			logger.Log.Fatal("Failed to init job guard", zap.Error(err))
		}
		defer redisGuard.Close()
		guard = redisGuard
	}

	syncManager := sync.NewManager(engine, cfg.Sync, guard)
	scheduler := sync.NewScheduler(cfg.Scheduler, syncManager)
	if err := scheduler.Start(); err != nil {
		logger.Log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Init API
	handler := api.NewHandler(syncManager, stateStore, metrics.Handler(), cfg.Server)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
	scheduler.Stop()
	syncManager.Stop()
	if err := metrics.Shutdown(ctx); err != nil {
		logger.Log.Warn("Metrics shutdown failed", zap.Error(err))
	}
}
