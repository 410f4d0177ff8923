package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"authorization-server/internal/oauth"
)

// consentTTL bounds how long a rendered consent form can be submitted.
const consentTTL = 10 * time.Minute

// consentSigner binds a consent form to the user who saw it and to the exact
// request it was rendered for. A POST without a matching token never issues
// a code.
type consentSigner struct {
	key []byte
	now func() time.Time
}

func newConsentSigner(key []byte) (*consentSigner, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate consent key: %w", err)
		}
	}
	return &consentSigner{key: key, now: time.Now}, nil
}

func (s *consentSigner) mac(issued int64, userID string, grant *oauth.AuthorizeGrant) []byte {
	h := hmac.New(sha256.New, s.key)
	fields := []string{
		strconv.FormatInt(issued, 10),
		userID,
		grant.Client.ID,
		grant.RequestedRedirectURI,
		grant.Scope,
		grant.State,
		grant.Nonce,
		grant.CodeChallenge,
		grant.CodeChallengeMethod,
	}
	h.Write([]byte(strings.Join(fields, "\x00")))
	return h.Sum(nil)
}

// Sign returns "<unix>.<mac>".
func (s *consentSigner) Sign(userID string, grant *oauth.AuthorizeGrant) string {
	issued := s.now().Unix()
	return strconv.FormatInt(issued, 10) + "." + base64.RawURLEncoding.EncodeToString(s.mac(issued, userID, grant))
}

func (s *consentSigner) Verify(token, userID string, grant *oauth.AuthorizeGrant) bool {
	ts, sig, ok := strings.Cut(token, ".")
	if !ok {
		return false
	}
	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	age := s.now().Sub(time.Unix(issued, 0))
	if age < -time.Minute || age > consentTTL {
		return false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, s.mac(issued, userID, grant))
}
