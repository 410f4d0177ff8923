package oauth

import (
	"context"
	"testing"

	"authorization-server/internal/models"
	oautherrors "authorization-server/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRegistry_Authenticate(t *testing.T) {
	f := newFixture(t)
	f.confidentialClient(t)
	f.publicClient(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		creds   ClientCredentials
		wantErr bool
	}{
		{"confidential with secret", ClientCredentials{ClientID: "c1", ClientSecret: confidentialSecret}, false},
		{"confidential wrong secret", ClientCredentials{ClientID: "c1", ClientSecret: "nope"}, true},
		{"confidential without secret", ClientCredentials{ClientID: "c1"}, true},
		{"public by id", ClientCredentials{ClientID: "spa", Method: AuthMethodNone}, false},
		{"public presenting secret", ClientCredentials{ClientID: "spa", ClientSecret: "x"}, true},
		{"unknown client", ClientCredentials{ClientID: "ghost", ClientSecret: "x"}, true},
		{"empty id", ClientCredentials{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := f.srv.Registry.Authenticate(ctx, tt.creds)
			if tt.wantErr {
				assert.Nil(t, client)
				assert.Equal(t, oautherrors.KindInvalidClient, oautherrors.KindOf(err))
				assert.Equal(t, 401, oautherrors.From(err).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.creds.ClientID, client.ID)
		})
	}
}

func TestClientRegistry_SecretStoredHashed(t *testing.T) {
	f := newFixture(t)
	f.confidentialClient(t)

	stored, err := f.repo.GetClientByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotEqual(t, confidentialSecret, stored.SecretHash)
	assert.Contains(t, stored.SecretHash, "$2a$")
}

func TestClientRegistry_Register(t *testing.T) {
	ctx := context.Background()
	no := false

	tests := []struct {
		name    string
		reg     Registration
		wantErr bool
	}{
		{"public defaults", Registration{RedirectURIs: []string{"https://a.test/cb"}}, false},
		{"public cannot opt out of pkce", Registration{RedirectURIs: []string{"https://a.test/cb"}, RequirePKCE: &no}, true},
		{"public with secret", Registration{RedirectURIs: []string{"https://a.test/cb"}, Secret: "s"}, true},
		{"public client_credentials", Registration{GrantTypes: []string{models.GrantClientCredentials}}, true},
		{"unknown grant", Registration{Confidential: true, GrantTypes: []string{"password"}}, true},
		{"relative redirect", Registration{RedirectURIs: []string{"/cb"}}, true},
		{"redirect with fragment", Registration{RedirectURIs: []string{"https://a.test/cb#x"}}, true},
		{"code flow without redirect", Registration{Confidential: true}, true},
		{"machine client", Registration{Confidential: true, GrantTypes: []string{models.GrantClientCredentials}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			client, secret, err := f.srv.Registry.Register(ctx, tt.reg)
			if tt.wantErr {
				assert.Equal(t, oautherrors.KindInvalidRequest, oautherrors.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, client.ID)
			assert.True(t, client.Active)
			assert.Equal(t, 3600, client.AccessTokenLifetime)
			if client.Confidential {
				assert.NotEmpty(t, secret)
			} else {
				assert.Empty(t, secret)
				assert.True(t, client.RequirePKCE)
				assert.Equal(t, []string{"openid", "profile", "email"}, client.Scopes)
			}
		})
	}
}

func TestClientRegistry_DuplicateID(t *testing.T) {
	f := newFixture(t)
	f.confidentialClient(t)

	_, _, err := f.srv.Registry.Register(context.Background(), Registration{
		ClientID:     "c1",
		RedirectURIs: []string{"https://a.test/cb"},
	})
	assert.Equal(t, oautherrors.KindInvalidRequest, oautherrors.KindOf(err))
}

func TestClientRegistry_Checks(t *testing.T) {
	f := newFixture(t)
	c := f.confidentialClient(t, models.GrantAuthorizationCode)
	r := f.srv.Registry

	assert.True(t, r.CheckRedirectURI(c, appRedirect))
	assert.False(t, r.CheckRedirectURI(c, appRedirect+"/"))
	assert.False(t, r.CheckRedirectURI(c, "https://app.test/cb?x=1"))
	assert.False(t, r.CheckRedirectURI(c, "https://app.test"))

	assert.True(t, r.CheckGrantType(c, models.GrantAuthorizationCode))
	assert.False(t, r.CheckGrantType(c, models.GrantRefreshToken))

	assert.True(t, r.CheckResponseType(c, "code"))
	assert.False(t, r.CheckResponseType(c, "token"))

	assert.True(t, r.CheckScope(c, ""))
	assert.True(t, r.CheckScope(c, "read:files"))
	assert.False(t, r.CheckScope(c, "admin"))
}

func TestClientRegistry_AdminOperationsInvalidateCache(t *testing.T) {
	f := newFixture(t)
	f.confidentialClient(t)
	ctx := context.Background()
	r := f.srv.Registry

	// Warm the cache.
	_, err := r.Lookup(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, r.UpdateScopes(ctx, "c1", []string{"read:files"}))
	c, err := r.Lookup(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"read:files"}, c.Scopes)

	require.NoError(t, r.UpdateGrantTypes(ctx, "c1", []string{models.GrantClientCredentials}))
	c, err = r.Lookup(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{models.GrantClientCredentials}, c.GrantTypes)

	secret, err := r.RotateSecret(ctx, "c1")
	require.NoError(t, err)
	_, err = r.Authenticate(ctx, ClientCredentials{ClientID: "c1", ClientSecret: confidentialSecret})
	assert.Error(t, err, "old secret rejected")
	_, err = r.Authenticate(ctx, ClientCredentials{ClientID: "c1", ClientSecret: secret})
	assert.NoError(t, err)

	require.NoError(t, r.Deactivate(ctx, "c1"))
	_, err = r.Lookup(ctx, "c1")
	assert.Equal(t, oautherrors.KindInvalidClient, oautherrors.KindOf(err))
	_, err = r.Authenticate(ctx, ClientCredentials{ClientID: "c1", ClientSecret: secret})
	assert.Equal(t, oautherrors.KindInvalidClient, oautherrors.KindOf(err))

	clients, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.False(t, clients[0].Active, "deactivation is soft")
}

func TestClientRegistry_RotateSecretPublicClient(t *testing.T) {
	f := newFixture(t)
	f.publicClient(t)

	_, err := f.srv.Registry.RotateSecret(context.Background(), "spa")
	assert.Equal(t, oautherrors.KindInvalidRequest, oautherrors.KindOf(err))

	_, err = f.srv.Registry.RotateSecret(context.Background(), "ghost")
	assert.Equal(t, oautherrors.KindInvalidClient, oautherrors.KindOf(err))
}
