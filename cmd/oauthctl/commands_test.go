package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"authorization-server/internal/app"
	"authorization-server/internal/cache"
	"authorization-server/internal/database"
	"authorization-server/internal/oauth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cli struct {
	repo     *database.MemoryRepository
	registry *oauth.ClientRegistry
	opener   opener
}

func newCLI() *cli {
	repo := database.NewMemoryRepository()
	storage := &app.Storage{Repo: repo, Cache: cache.NewMemoryCache(0)}
	registry := oauth.NewClientRegistry(repo, storage.Cache, oauth.Options{SupportedScopes: []string{"openid"}}, zap.NewNop())
	return &cli{
		repo:     repo,
		registry: registry,
		opener: func(context.Context) (*env, error) {
			return &env{registry: registry, storage: storage, logger: zap.NewNop(), close: func() {}}, nil
		},
	}
}

func (c *cli) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(c.opener)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClientCreateAndList(t *testing.T) {
	c := newCLI()

	out, err := c.run(t, "client", "create", "--id", "web", "--name", "Web",
		"--redirect-uri", "https://app.example/cb", "--scope", "openid", "--scope", "read:files")
	require.NoError(t, err)
	assert.Contains(t, out, "client_id: web")
	assert.Contains(t, out, "client_secret: ")

	out, err = c.run(t, "client", "create", "--id", "spa", "--public", "--redirect-uri", "https://spa.example/cb")
	require.NoError(t, err)
	assert.NotContains(t, out, "client_secret")

	out, err = c.run(t, "client", "list")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, out, "confidential")
	assert.Contains(t, out, "public")
	assert.Contains(t, out, "openid read:files")
}

func TestClientRotateSecret(t *testing.T) {
	c := newCLI()
	_, err := c.run(t, "client", "create", "--id", "web", "--secret", "old", "--redirect-uri", "https://app.example/cb")
	require.NoError(t, err)

	out, err := c.run(t, "client", "rotate-secret", "web")
	require.NoError(t, err)
	secret := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(out), "client_secret:"))
	require.NotEmpty(t, secret)

	ctx := context.Background()
	_, err = c.registry.Authenticate(ctx, oauth.ClientCredentials{ClientID: "web", ClientSecret: "old"})
	assert.Error(t, err)
	_, err = c.registry.Authenticate(ctx, oauth.ClientCredentials{ClientID: "web", ClientSecret: secret})
	assert.NoError(t, err)
}

func TestClientDeactivateAndSetScopes(t *testing.T) {
	c := newCLI()
	ctx := context.Background()
	_, err := c.run(t, "client", "create", "--id", "web", "--redirect-uri", "https://app.example/cb")
	require.NoError(t, err)

	_, err = c.run(t, "client", "set-scopes", "web", "openid", "email")
	require.NoError(t, err)
	client, _ := c.repo.GetClientByID(ctx, "web")
	assert.Equal(t, []string{"openid", "email"}, client.Scopes)

	_, err = c.run(t, "client", "set-grants", "web", "authorization_code", "client_credentials")
	require.NoError(t, err)
	client, _ = c.repo.GetClientByID(ctx, "web")
	assert.Equal(t, []string{"authorization_code", "client_credentials"}, client.GrantTypes)

	_, err = c.run(t, "client", "deactivate", "web")
	require.NoError(t, err)
	client, _ = c.repo.GetClientByID(ctx, "web")
	assert.False(t, client.Active)

	_, err = c.run(t, "client", "deactivate", "missing")
	assert.Error(t, err)
}

func TestClientSeed(t *testing.T) {
	c := newCLI()
	path := filepath.Join(t.TempDir(), "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
clients:
  - client_id: web
    client_secret: s3cret
    confidential: true
    redirect_uris: [https://app.example/cb]
users:
  - id: alice
`), 0o600))

	out, err := c.run(t, "client", "seed", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created 1, skipped 0 existing, upserted 1 users")

	out, err = c.run(t, "client", "seed", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "created 0, skipped 1 existing")

	_, err = c.run(t, "client", "seed")
	assert.Error(t, err, "--file is required")
}
