package oauth

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"authorization-server/internal/auth"
	"authorization-server/internal/cache"
	"authorization-server/internal/database"
	"authorization-server/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	srv   *Server
	repo  *database.MemoryRepository
	clock *fakeClock
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	opts := Options{
		Issuer:          "https://auth.example.com",
		SupportedScopes: []string{"openid", "profile", "email"},
		AllowPKCEPlain:  true,
		Now:             clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}

	keys, err := auth.NewEphemeralKeyManager()
	require.NoError(t, err)
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	repo := database.NewMemoryRepository()
	srv := NewServer(repo, cache.NewMemoryCache(time.Minute), keys, opts, metrics, zap.NewNop())
	return &fixture{srv: srv, repo: repo, clock: clock}
}

const (
	confidentialSecret = "c1-secret"
	appRedirect        = "https://app.test/cb"
)

// confidentialClient registers c1: confidential, read:files, one redirect.
func (f *fixture) confidentialClient(t *testing.T, grantTypes ...string) *models.Client {
	t.Helper()
	if len(grantTypes) == 0 {
		grantTypes = []string{models.GrantAuthorizationCode, models.GrantRefreshToken, models.GrantClientCredentials}
	}
	c, secret, err := f.srv.Registry.Register(context.Background(), Registration{
		ClientID:     "c1",
		Secret:       confidentialSecret,
		Name:         "Files App",
		RedirectURIs: []string{appRedirect},
		Scopes:       []string{"read:files", "write:files", "openid", "profile", "email"},
		GrantTypes:   grantTypes,
		Confidential: true,
	})
	require.NoError(t, err)
	require.Equal(t, confidentialSecret, secret)
	return c
}

func (f *fixture) publicClient(t *testing.T) *models.Client {
	t.Helper()
	c, _, err := f.srv.Registry.Register(context.Background(), Registration{
		ClientID:     "spa",
		Name:         "SPA",
		RedirectURIs: []string{"https://spa.test/cb", "https://spa.test/alt"},
		Scopes:       []string{"openid", "profile"},
	})
	require.NoError(t, err)
	return c
}

func c1Creds() ClientCredentials {
	return ClientCredentials{ClientID: "c1", ClientSecret: confidentialSecret, Method: AuthMethodBasic}
}

// authorize runs validate + approve and returns the raw code.
func (f *fixture) authorize(t *testing.T, req AuthorizeRequest, userID string) string {
	t.Helper()
	ctx := context.Background()

	grant, err := f.srv.Grants.ValidateAuthorize(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, grant)

	location, err := f.srv.Grants.Approve(ctx, grant, userID)
	require.NoError(t, err)
	return codeFromLocation(t, location)
}

func c1AuthorizeRequest(scope string) AuthorizeRequest {
	return AuthorizeRequest{
		ClientID:            "c1",
		RedirectURI:         appRedirect,
		ResponseType:        "code",
		Scope:               scope,
		State:               "xyz",
		CodeChallenge:       S256Challenge("verifier123"),
		CodeChallengeMethod: "S256",
	}
}

func c1CodeExchange(code string) TokenRequest {
	return TokenRequest{
		GrantType:    models.GrantAuthorizationCode,
		Credentials:  c1Creds(),
		Code:         code,
		RedirectURI:  appRedirect,
		CodeVerifier: "verifier123",
	}
}

func codeFromLocation(t *testing.T, location string) string {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.NotEmpty(t, code, "redirect %s carries no code", location)
	return code
}
