package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

const rsaKeyBits = 2048

// SigningKey is one RSA key of the ID-token key set.
type SigningKey struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
	CreatedAt  time.Time
	ExpiresAt  time.Time // zero while the key is current
}

func (k *SigningKey) expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && !now.Before(k.ExpiresAt)
}

// KeyManager holds the signing key set. The current key signs; retired keys
// stay published in the JWKS until their grace period ends.
type KeyManager struct {
	mu           sync.RWMutex
	keys         map[string]*SigningKey
	currentKeyID string
	now          func() time.Time
}

// NewKeyManager creates a key manager from a PEM-encoded key pair.
func NewKeyManager(privateKeyPEM, publicKeyPEM string) (*KeyManager, error) {
	privateKey, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	publicKey, err := parseRSAPublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	if publicKey.N.Cmp(privateKey.PublicKey.N) != 0 || publicKey.E != privateKey.PublicKey.E {
		return nil, errors.New("public key does not match private key")
	}

	return newKeyManager(privateKey), nil
}

// NewEphemeralKeyManager generates a fresh key pair. ID tokens signed with
// it do not verify after a restart.
func NewEphemeralKeyManager() (*KeyManager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return newKeyManager(privateKey), nil
}

func newKeyManager(privateKey *rsa.PrivateKey) *KeyManager {
	km := &KeyManager{
		keys: make(map[string]*SigningKey),
		now:  time.Now,
	}
	km.install(privateKey)
	return km
}

// install must be called with mu held or before km is shared.
func (km *KeyManager) install(privateKey *rsa.PrivateKey) *SigningKey {
	key := &SigningKey{
		KeyID:      uuid.New().String(),
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		CreatedAt:  km.now(),
	}
	km.keys[key.KeyID] = key
	km.currentKeyID = key.KeyID
	return key
}

// Current returns the signing key.
func (km *KeyManager) Current() *SigningKey {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.keys[km.currentKeyID]
}

// PublicKey returns the verification key for kid while it is published.
func (km *KeyManager) PublicKey(kid string) (*rsa.PublicKey, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	key, ok := km.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key: %s", kid)
	}
	if key.expired(km.now()) {
		return nil, fmt.Errorf("key expired: %s", kid)
	}
	return key.PublicKey, nil
}

// JWKSet returns every published public key.
func (km *KeyManager) JWKSet() (jwk.Set, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	set := jwk.NewSet()
	now := km.now()
	for _, k := range km.keys {
		if k.expired(now) {
			continue
		}

		key, err := jwk.FromRaw(k.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to build jwk for %s: %w", k.KeyID, err)
		}
		_ = key.Set(jwk.KeyIDKey, k.KeyID)
		_ = key.Set(jwk.AlgorithmKey, "RS256")
		_ = key.Set(jwk.KeyUsageKey, "sig")

		if err := set.AddKey(key); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Rotate generates a new current key. The previous key stays published for
// gracePeriod so ID tokens it signed can still be verified.
func (km *KeyManager) Rotate(gracePeriod time.Duration) (string, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", fmt.Errorf("failed to generate new RSA key: %w", err)
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if current, ok := km.keys[km.currentKeyID]; ok {
		current.ExpiresAt = km.now().Add(gracePeriod)
	}
	return km.install(privateKey).KeyID, nil
}

// PruneExpired drops retired keys whose grace period has ended and returns
// how many were removed.
func (km *KeyManager) PruneExpired() int {
	km.mu.Lock()
	defer km.mu.Unlock()

	now := km.now()
	removed := 0
	for id, k := range km.keys {
		if id != km.currentKeyID && k.expired(now) {
			delete(km.keys, id)
			removed++
		}
	}
	return removed
}

// parseRSAPrivateKey parses a PEM-encoded RSA private key.
func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		// Try PKCS8 format
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := parsedKey.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	return key, nil
}

// parseRSAPublicKey parses a PEM-encoded RSA public key.
func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		// Try PKCS1 format
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("key is not an RSA public key")
	}
	return rsaKey, nil
}
