// Package app assembles the server's dependencies from configuration. It
// is shared by the server binary and the admin CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"authorization-server/internal/auth"
	"authorization-server/internal/cache"
	"authorization-server/internal/config"
	"authorization-server/internal/database"
	"authorization-server/internal/models"
	"authorization-server/internal/oauth"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger. format is "json" or "console".
func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	zc := zap.NewProductionConfig()
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// Storage is the repository and cache pair the server runs on.
type Storage struct {
	Repo  database.Repository
	Cache cache.Cache
}

// OpenStorage connects to Postgres and Redis, or falls back to in-memory
// implementations when they are not configured.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Storage, error) {
	s := &Storage{}

	if cfg.UseMemoryStore() {
		logger.Warn("DATABASE_URL not set, using in-memory storage")
		s.Repo = database.NewMemoryRepository()
	} else {
		repo, err := database.NewRepository(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := repo.EnsureSchema(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
		s.Repo = repo
	}

	if cfg.RedisURL == "" {
		s.Cache = cache.NewMemoryCache(time.Minute)
	} else {
		c, err := cache.NewRedisCache(ctx, cfg.RedisURL, logger)
		if err != nil {
			s.Repo.Close()
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		s.Cache = c
	}
	return s, nil
}

func (s *Storage) Close() {
	s.Cache.Close()
	s.Repo.Close()
}

// Options maps configuration onto the protocol settings.
func Options(cfg *config.Config) oauth.Options {
	return oauth.Options{
		Issuer:                       cfg.Issuer,
		AuthCodeTTL:                  cfg.AuthCodeTTL,
		DefaultAccessTokenTTL:        cfg.DefaultAccessTokenTTL,
		DefaultRefreshTokenTTL:       cfg.DefaultRefreshTokenTTL,
		SupportedScopes:              cfg.SupportedScopes,
		AllowConfidentialWithoutPKCE: cfg.AllowConfidentialWithoutPKCE,
		AllowPKCEPlain:               cfg.AllowPKCEPlain,
	}
}

// LoadKeys loads the configured signing key pair, or generates one. A
// generated key does not survive restarts, so issued ID tokens stop
// verifying after one.
func LoadKeys(cfg *config.Config, logger *zap.Logger) (*auth.KeyManager, error) {
	if cfg.JWTPrivateKey == "" {
		logger.Warn("JWT_PRIVATE_KEY not set, generating an ephemeral signing key")
		return auth.NewEphemeralKeyManager()
	}
	return auth.NewKeyManager(cfg.JWTPrivateKey, cfg.JWTPublicKey)
}

// KeyRotator is the part of auth.KeyManager the rotation loop drives.
type KeyRotator interface {
	Rotate(gracePeriod time.Duration) (string, error)
	PruneExpired() int
}

// RunKeyRotation rotates the signing key every interval and prunes keys
// whose grace period ended. It returns when ctx is done.
func RunKeyRotation(ctx context.Context, keys KeyRotator, interval, grace time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			kid, err := keys.Rotate(grace)
			if err != nil {
				logger.Error("Failed to rotate signing key", zap.Error(err))
				continue
			}
			pruned := keys.PruneExpired()
			logger.Info("Rotated signing key", zap.String("kid", kid), zap.Int("pruned", pruned))
		}
	}
}

// Registration converts a seed entry.
func Registration(s config.ClientSeed) oauth.Registration {
	return oauth.Registration{
		ClientID:             s.ID,
		Secret:               s.Secret,
		Name:                 s.Name,
		URI:                  s.URI,
		LogoURI:              s.LogoURI,
		RedirectURIs:         s.RedirectURIs,
		Scopes:               s.Scopes,
		GrantTypes:           s.GrantTypes,
		ResponseTypes:        s.ResponseTypes,
		Confidential:         s.Confidential,
		RequirePKCE:          s.RequirePKCE,
		AccessTokenLifetime:  s.AccessTokenLifetime,
		RefreshTokenLifetime: s.RefreshTokenLifetime,
		RateLimit:            s.RateLimit,
	}
}

// SeedResult counts what Seed did.
type SeedResult struct {
	Created int
	Skipped int
	Users   int
}

// Seed registers clients that do not exist yet and upserts users. Existing
// clients are left untouched so restarts keep rotated secrets.
func Seed(ctx context.Context, registry *oauth.ClientRegistry, repo database.Repository, seed *config.Seed, logger *zap.Logger) (SeedResult, error) {
	var res SeedResult

	for _, cs := range seed.Clients {
		existing, err := repo.GetClientByID(ctx, cs.ID)
		if err != nil {
			return res, fmt.Errorf("look up client %s: %w", cs.ID, err)
		}
		if existing != nil {
			res.Skipped++
			continue
		}
		if _, _, err := registry.Register(ctx, Registration(cs)); err != nil {
			return res, fmt.Errorf("register client %s: %w", cs.ID, err)
		}
		logger.Info("Seeded client", zap.String("client_id", cs.ID))
		res.Created++
	}

	for _, us := range seed.Users {
		err := repo.UpsertUser(ctx, models.User{
			ID:            us.ID,
			Username:      us.Username,
			FullName:      us.Name,
			Picture:       us.Picture,
			Email:         us.Email,
			EmailVerified: us.EmailVerified,
		})
		if err != nil {
			return res, fmt.Errorf("upsert user %s: %w", us.ID, err)
		}
		res.Users++
	}
	return res, nil
}
