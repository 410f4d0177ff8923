package oauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"authorization-server/internal/models"
	"authorization-server/internal/testutil/mocks"
	oautherrors "authorization-server/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var errStorage = errors.New("pq: connection refused to 10.0.0.7:5432")

func mockedServer(t *testing.T) (*Server, *mocks.MockRepository) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(confidentialSecret), bcrypt.MinCost)
	require.NoError(t, err)

	repo := new(mocks.MockRepository)
	repo.On("GetClientByID", mock.Anything, "c1").Return(&models.Client{
		ID:            "c1",
		SecretHash:    string(hash),
		RedirectURIs:  []string{appRedirect},
		Scopes:        []string{"read:files", "openid"},
		GrantTypes:    []string{models.GrantAuthorizationCode, models.GrantRefreshToken},
		ResponseTypes: []string{models.ResponseTypeCode},
		Confidential:  true,
		Active:        true,
	}, nil)

	srv := NewServer(repo, nil, nil, Options{Issuer: "https://auth.example.com"}, nil, zap.NewNop())
	return srv, repo
}

func assertGenericServerError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	oe := oautherrors.From(err)
	assert.Equal(t, oautherrors.KindServerError, oe.Kind)
	assert.Equal(t, 500, oe.Status)
	assert.NotContains(t, oe.Description, "10.0.0.7")
	assert.ErrorIs(t, oe.Err, errStorage)
}

func TestStorageFailuresAreServerErrors(t *testing.T) {
	creds := ClientCredentials{ClientID: "c1", ClientSecret: confidentialSecret, Method: AuthMethodBasic}

	t.Run("client lookup", func(t *testing.T) {
		repo := new(mocks.MockRepository)
		repo.On("GetClientByID", mock.Anything, "c1").Return(nil, errStorage)
		srv := NewServer(repo, nil, nil, Options{Issuer: "https://auth.example.com"}, nil, zap.NewNop())

		_, err := srv.Grants.Token(context.Background(), TokenRequest{GrantType: models.GrantRefreshToken, Credentials: creds, RefreshToken: "r"})
		assertGenericServerError(t, err)
	})

	t.Run("code lookup", func(t *testing.T) {
		srv, repo := mockedServer(t)
		repo.On("GetAuthorizationCode", mock.Anything, mock.Anything).Return(nil, errStorage)

		_, err := srv.Grants.Token(context.Background(), TokenRequest{
			GrantType:    models.GrantAuthorizationCode,
			Credentials:  creds,
			Code:         "some-code",
			RedirectURI:  appRedirect,
			CodeVerifier: "verifier123",
		})
		assertGenericServerError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("code redemption", func(t *testing.T) {
		srv, repo := mockedServer(t)
		now := time.Now()
		repo.On("GetAuthorizationCode", mock.Anything, hashToken("some-code")).Return(&models.AuthorizationCode{
			CodeHash:            hashToken("some-code"),
			ClientID:            "c1",
			UserID:              "user-1",
			RedirectURI:         appRedirect,
			Scope:               "read:files",
			CodeChallenge:       S256Challenge("verifier123"),
			CodeChallengeMethod: "S256",
			CreatedAt:           now,
			ExpiresAt:           now.Add(time.Minute),
		}, nil)
		repo.On("RedeemAuthorizationCode", mock.Anything, hashToken("some-code"), mock.Anything, mock.Anything).Return(errStorage)

		_, err := srv.Grants.Token(context.Background(), TokenRequest{
			GrantType:    models.GrantAuthorizationCode,
			Credentials:  creds,
			Code:         "some-code",
			RedirectURI:  appRedirect,
			CodeVerifier: "verifier123",
		})
		assertGenericServerError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("refresh lookup", func(t *testing.T) {
		srv, repo := mockedServer(t)
		repo.On("GetTokenByRefreshHash", mock.Anything, hashToken("refresh-value")).Return(nil, errStorage)

		_, err := srv.Grants.Token(context.Background(), TokenRequest{
			GrantType:    models.GrantRefreshToken,
			Credentials:  creds,
			RefreshToken: "refresh-value",
		})
		assertGenericServerError(t, err)
		repo.AssertExpectations(t)
	})
}
