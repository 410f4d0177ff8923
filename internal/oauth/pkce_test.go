package oauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS256Challenge(t *testing.T) {
	// RFC 7636 appendix B.
	assert.Equal(t,
		"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		S256Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wnw1gFWFOEjXk"))
}

func TestVerifyPKCE(t *testing.T) {
	tests := []struct {
		name      string
		challenge string
		method    string
		verifier  string
		wantErr   bool
	}{
		{"s256 match", S256Challenge("verifier123"), "S256", "verifier123", false},
		{"s256 mismatch", S256Challenge("verifier123"), "S256", "verifier124", true},
		{"plain match", "verifier123", "plain", "verifier123", false},
		{"plain mismatch", "verifier123", "plain", "other", true},
		{"missing verifier", S256Challenge("verifier123"), "S256", "", true},
		{"bad alphabet", S256Challenge("a b"), "S256", "a b", true},
		{"too long", S256Challenge(strings.Repeat("a", 129)), "S256", strings.Repeat("a", 129), true},
		{"unknown method", "x", "S512", "x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyPKCE(tt.challenge, tt.method, tt.verifier)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCheckChallenge(t *testing.T) {
	method, err := checkChallenge(S256Challenge("v"), "", false)
	require.NoError(t, err)
	assert.Equal(t, "S256", method, "method defaults to S256")

	_, err = checkChallenge("verifier123", "plain", false)
	assert.Error(t, err, "plain disabled")

	method, err = checkChallenge("verifier123", "plain", true)
	require.NoError(t, err)
	assert.Equal(t, "plain", method)

	_, err = checkChallenge("has space", "S256", true)
	assert.Error(t, err)
}
