package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"authorization-server/internal/app"
	"authorization-server/internal/auth"
	"authorization-server/internal/cache"
	"authorization-server/internal/config"
	"authorization-server/internal/database"
	"authorization-server/internal/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	logger, err := app.NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = app.NewLogger("warn", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = app.NewLogger("loud", "json")
	assert.Error(t, err)
}

func TestOpenStorage_Memory(t *testing.T) {
	s, err := app.OpenStorage(context.Background(), &config.Config{}, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &database.MemoryRepository{}, s.Repo)
	assert.IsType(t, &cache.MemoryCache{}, s.Cache)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	repo := database.NewMemoryRepository()
	registry := oauth.NewClientRegistry(repo, nil, oauth.Options{SupportedScopes: []string{"openid"}}, zap.NewNop())

	seed := &config.Seed{
		Clients: []config.ClientSeed{
			{ID: "web", Secret: "s3cret", Confidential: true, RedirectURIs: []string{"https://app.example/cb"}},
			{ID: "spa", RedirectURIs: []string{"https://spa.example/cb"}},
		},
		Users: []config.UserSeed{{ID: "alice", Username: "alice", Email: "alice@example.com"}},
	}

	res, err := app.Seed(ctx, registry, repo, seed, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, app.SeedResult{Created: 2, Users: 1}, res)

	web, err := registry.Authenticate(ctx, oauth.ClientCredentials{ClientID: "web", ClientSecret: "s3cret"})
	require.NoError(t, err)
	assert.True(t, web.Confidential)

	// Rotated secrets survive a reseed.
	newSecret, err := registry.RotateSecret(ctx, "web")
	require.NoError(t, err)
	res, err = app.Seed(ctx, registry, repo, seed, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Skipped)
	_, err = registry.Authenticate(ctx, oauth.ClientCredentials{ClientID: "web", ClientSecret: newSecret})
	assert.NoError(t, err)

	user, err := repo.GetUserByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestSeed_InvalidClient(t *testing.T) {
	repo := database.NewMemoryRepository()
	registry := oauth.NewClientRegistry(repo, nil, oauth.Options{}, zap.NewNop())

	seed := &config.Seed{Clients: []config.ClientSeed{{ID: "web", Confidential: true, Secret: "x"}}}
	_, err := app.Seed(context.Background(), registry, repo, seed, zap.NewNop())
	assert.Error(t, err, "authorization_code without redirect URIs")
}

type countingRotator struct {
	mu      sync.Mutex
	rotated int
	pruned  int
}

func (r *countingRotator) Rotate(time.Duration) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rotated++
	return fmt.Sprintf("kid-%d", r.rotated), nil
}

func (r *countingRotator) PruneExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruned++
	return 0
}

func (r *countingRotator) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotated, r.pruned
}

func TestRunKeyRotation(t *testing.T) {
	rotator := &countingRotator{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.RunKeyRotation(ctx, rotator, 10*time.Millisecond, time.Hour, zap.NewNop())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		rotated, pruned := rotator.counts()
		return rotated >= 2 && pruned >= 2
	}, 5*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("rotation loop did not stop")
	}
}

func TestRunKeyRotationWithKeyManager(t *testing.T) {
	keys, err := auth.NewEphemeralKeyManager()
	require.NoError(t, err)
	first := keys.Current().KeyID

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.RunKeyRotation(ctx, keys, 200*time.Millisecond, time.Hour, zap.NewNop())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return keys.Current().KeyID != first
	}, 10*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("rotation loop did not stop")
	}
}
