package auth_test

import (
	"testing"
	"time"

	"authorization-server/internal/auth"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDTokenSigner_RoundTrip(t *testing.T) {
	km, err := auth.NewEphemeralKeyManager()
	require.NoError(t, err)
	signer := auth.NewIDTokenSigner(km, "https://auth.example.com")

	authTime := time.Now().Add(-time.Minute)
	signed, err := signer.Sign("user-1", "web", "n-123", authTime, time.Hour)
	require.NoError(t, err)

	claims, err := signer.Verify(signed, "web")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "https://auth.example.com", claims.Issuer)
	assert.Equal(t, "n-123", claims.Nonce)
	assert.Equal(t, authTime.Unix(), claims.AuthTime)

	_, err = signer.Verify(signed, "other-client")
	assert.Error(t, err, "audience must match")
}

func TestIDTokenSigner_VerifiesAfterRotation(t *testing.T) {
	km, err := auth.NewEphemeralKeyManager()
	require.NoError(t, err)
	signer := auth.NewIDTokenSigner(km, "https://auth.example.com")

	signed, err := signer.Sign("user-1", "web", "", time.Time{}, time.Hour)
	require.NoError(t, err)

	_, err = km.Rotate(time.Hour)
	require.NoError(t, err)
	_, err = signer.Verify(signed, "web")
	assert.NoError(t, err)

	km2, err := auth.NewEphemeralKeyManager()
	require.NoError(t, err)
	signer2 := auth.NewIDTokenSigner(km2, "https://auth.example.com")
	signed2, err := signer2.Sign("user-1", "web", "", time.Time{}, time.Hour)
	require.NoError(t, err)

	_, err = km2.Rotate(0)
	require.NoError(t, err)
	_, err = signer2.Verify(signed2, "web")
	assert.Error(t, err, "signing key no longer published")
}

func TestIDTokenSigner_MissingKidFails(t *testing.T) {
	km, err := auth.NewEphemeralKeyManager()
	require.NoError(t, err)
	signer := auth.NewIDTokenSigner(km, "issuer")

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss": "issuer",
		"aud": "web",
		"exp": now.Add(time.Hour).Unix(),
		"iat": now.Unix(),
	})
	signed, err := token.SignedString(km.Current().PrivateKey)
	require.NoError(t, err)

	_, err = signer.Verify(signed, "web")
	assert.Error(t, err)
}
