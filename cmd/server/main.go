package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authorization-server/internal/app"
	"authorization-server/internal/config"
	"authorization-server/internal/oauth"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting authorization server", zap.String("issuer", cfg.Issuer))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	keys, err := app.LoadKeys(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize key manager", zap.Error(err))
	}
	go app.RunKeyRotation(ctx, keys,
		time.Duration(cfg.KeyRotationDays)*24*time.Hour,
		time.Duration(cfg.KeyGraceDays)*24*time.Hour,
		logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := oauth.NewMetrics(reg)
	if err != nil {
		logger.Fatal("Failed to register metrics", zap.Error(err))
	}

	srv := oauth.NewServer(storage.Repo, storage.Cache, keys, app.Options(cfg), metrics, logger)

	if cfg.ClientsFile != "" {
		seed, err := config.LoadSeedFile(cfg.ClientsFile)
		if err != nil {
			logger.Fatal("Failed to load clients file", zap.String("path", cfg.ClientsFile), zap.Error(err))
		}
		res, err := app.Seed(ctx, srv.Registry, storage.Repo, seed, logger)
		if err != nil {
			logger.Fatal("Failed to seed clients", zap.Error(err))
		}
		logger.Info("Clients file applied",
			zap.Int("created", res.Created),
			zap.Int("skipped", res.Skipped),
			zap.Int("users", res.Users))
	}

	router, err := SetupRouter(srv, storage, cfg, reg, logger)
	if err != nil {
		logger.Fatal("Failed to set up router", zap.Error(err))
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
