package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"authorization-server/internal/models"
)

const maxPKCELength = 128

// S256Challenge derives the S256 code_challenge for verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// validPKCEString checks the RFC 7636 unreserved alphabet and the upper
// length bound. The 43 character minimum is not enforced.
func validPKCEString(s string) bool {
	if s == "" || len(s) > maxPKCELength {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		ok := (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !ok {
			return false
		}
	}
	return true
}

// checkChallenge validates an authorize-time challenge and returns the
// effective method.
func checkChallenge(challenge, method string, allowPlain bool) (string, error) {
	if method == "" {
		method = models.PKCEMethodS256
	}
	switch method {
	case models.PKCEMethodS256:
	case models.PKCEMethodPlain:
		if !allowPlain {
			return "", fmt.Errorf("code_challenge_method plain is not allowed")
		}
	default:
		return "", fmt.Errorf("unsupported code_challenge_method %q", method)
	}
	if !validPKCEString(challenge) {
		return "", fmt.Errorf("malformed code_challenge")
	}
	return method, nil
}

// verifyPKCE checks verifier against the stored challenge in constant time.
func verifyPKCE(challenge, method, verifier string) error {
	if verifier == "" {
		return fmt.Errorf("code_verifier is required")
	}
	if !validPKCEString(verifier) {
		return fmt.Errorf("malformed code_verifier")
	}

	var computed string
	switch method {
	case models.PKCEMethodS256, "":
		computed = S256Challenge(verifier)
	case models.PKCEMethodPlain:
		computed = verifier
	default:
		return fmt.Errorf("unsupported code_challenge_method %q", method)
	}

	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}
	return nil
}
