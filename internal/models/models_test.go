package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRequiresPKCE(t *testing.T) {
	tests := []struct {
		name   string
		client Client
		want   bool
	}{
		{"public client always requires pkce", Client{Confidential: false, RequirePKCE: false}, true},
		{"confidential with flag", Client{Confidential: true, RequirePKCE: true}, true},
		{"confidential without flag", Client{Confidential: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.client.RequiresPKCE())
		})
	}
}

func TestClientLifetimesDefault(t *testing.T) {
	c := Client{}
	assert.Equal(t, time.Hour, c.AccessTokenTTL())
	assert.Equal(t, 30*24*time.Hour, c.RefreshTokenTTL())

	c.AccessTokenLifetime = 60
	c.RefreshTokenLifetime = 120
	assert.Equal(t, time.Minute, c.AccessTokenTTL())
	assert.Equal(t, 2*time.Minute, c.RefreshTokenTTL())
}

func TestClientAllowsResponseType(t *testing.T) {
	c := Client{GrantTypes: []string{GrantAuthorizationCode}}
	assert.True(t, c.AllowsResponseType(ResponseTypeCode))
	assert.False(t, c.AllowsResponseType("token"))

	c = Client{GrantTypes: []string{GrantClientCredentials}}
	assert.False(t, c.AllowsResponseType(ResponseTypeCode))
}

func TestAuthorizationCodeIsValid(t *testing.T) {
	now := time.Now()
	code := AuthorizationCode{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, code.IsValid(now))

	code.Used = true
	assert.False(t, code.IsValid(now))

	code.Used = false
	assert.False(t, code.IsValid(now.Add(2*time.Minute)))
}

func TestTokenValidity(t *testing.T) {
	now := time.Now()
	refreshExp := now.Add(time.Hour)
	tok := Token{
		AccessExpiresAt:  now.Add(time.Minute),
		RefreshTokenHash: "h",
		RefreshExpiresAt: &refreshExp,
		Scope:            "openid email",
	}

	assert.True(t, tok.IsValid(now))
	assert.True(t, tok.RefreshValid(now))
	assert.False(t, tok.IsValid(now.Add(2*time.Minute)))
	assert.True(t, tok.RefreshValid(now.Add(2*time.Minute)))
	assert.True(t, tok.HasScope("email"))
	assert.False(t, tok.HasScope("profile"))

	tok.Revoked = true
	assert.False(t, tok.IsValid(now))
	assert.False(t, tok.RefreshValid(now))
}
