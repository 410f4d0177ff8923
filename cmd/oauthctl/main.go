// Command oauthctl administers registered OAuth clients directly against
// the configured store.
package main

import (
	"context"
	"fmt"
	"os"

	"authorization-server/internal/app"
	"authorization-server/internal/config"
	"authorization-server/internal/oauth"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(openFromConfig).Execute(); err != nil {
		os.Exit(1)
	}
}

func openFromConfig(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	if cfg.UseMemoryStore() {
		return nil, fmt.Errorf("DATABASE_URL must point at Postgres; changes to an in-memory store would be lost")
	}

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &env{
		registry: oauth.NewClientRegistry(storage.Repo, storage.Cache, app.Options(cfg), logger),
		storage:  storage,
		logger:   logger,
		close: func() {
			storage.Close()
			logger.Sync()
		},
	}, nil
}

type env struct {
	registry *oauth.ClientRegistry
	storage  *app.Storage
	logger   *zap.Logger
	close    func()
}
