package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims are the OpenID Connect claims this server issues.
type IDTokenClaims struct {
	Nonce    string `json:"nonce,omitempty"`
	AuthTime int64  `json:"auth_time,omitempty"`
	jwt.RegisteredClaims
}

// IDTokenSigner signs and verifies RS256 ID tokens with the key manager's
// current key.
type IDTokenSigner struct {
	keys   *KeyManager
	issuer string
}

// NewIDTokenSigner creates a signer for the given issuer.
func NewIDTokenSigner(keys *KeyManager, issuer string) *IDTokenSigner {
	return &IDTokenSigner{keys: keys, issuer: issuer}
}

// Sign issues an ID token for subject, addressed to clientID.
func (s *IDTokenSigner) Sign(subject, clientID, nonce string, authTime time.Time, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IDTokenClaims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{clientID},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if !authTime.IsZero() {
		claims.AuthTime = authTime.Unix()
	}

	key := s.keys.Current()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = key.KeyID

	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign id token: %w", err)
	}
	return signed, nil
}

// Verify parses an ID token issued by this server for clientID.
func (s *IDTokenSigner) Verify(tokenString, clientID string) (*IDTokenClaims, error) {
	claims := &IDTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Require kid so we always pick an explicit key; no fallback.
		kid, ok := token.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, errors.New("missing kid in token header")
		}
		return s.keys.PublicKey(kid)
	},
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("id token is not valid")
	}
	return claims, nil
}
