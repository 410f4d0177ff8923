// Package testutil holds helpers shared by tests across packages.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

// KeyEncoding selects the PEM container for a generated private key.
type KeyEncoding int

const (
	PKCS1 KeyEncoding = iota
	PKCS8
)

// PEMKeyPair generates a 2048-bit RSA key and returns the private key in
// the requested encoding and the public key as PKIX, both PEM encoded.
func PEMKeyPair(t *testing.T, enc KeyEncoding) (privatePEM, publicPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var priv *pem.Block
	switch enc {
	case PKCS8:
		der, err := x509.MarshalPKCS8PrivateKey(key)
		require.NoError(t, err)
		priv = &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	default:
		priv = &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	}

	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(priv)), string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub}))
}
