package oauth

import (
	"context"

	"authorization-server/internal/database"
	"authorization-server/internal/models"
	oautherrors "authorization-server/pkg/errors"

	"go.uber.org/zap"
)

// IssueParams are the authorize-request values bound to a code.
type IssueParams struct {
	// RedirectURI is the redirect_uri as sent on the authorize request,
	// empty when the client omitted it.
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// CodeIssuer mints and validates single-use authorization codes.
type CodeIssuer struct {
	repo   database.Repository
	opts   Options
	logger *zap.Logger
}

func NewCodeIssuer(repo database.Repository, opts Options, logger *zap.Logger) *CodeIssuer {
	opts.setDefaults()
	return &CodeIssuer{repo: repo, opts: opts, logger: logger}
}

// Issue creates a code for userID. Only the hash is stored; the raw value
// is returned once.
func (ci *CodeIssuer) Issue(ctx context.Context, client *models.Client, userID string, p IssueParams) (*models.AuthorizationCode, string, error) {
	raw, err := randomToken(tokenBytes)
	if err != nil {
		return nil, "", oautherrors.ServerError(err)
	}

	now := ci.opts.Now()
	code := &models.AuthorizationCode{
		CodeHash:            hashToken(raw),
		ClientID:            client.ID,
		UserID:              userID,
		RedirectURI:         p.RedirectURI,
		Scope:               p.Scope,
		State:               p.State,
		Nonce:               p.Nonce,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: p.CodeChallengeMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(ci.opts.AuthCodeTTL),
	}

	if err := ci.repo.SaveAuthorizationCode(ctx, code); err != nil {
		ci.logger.Error("Failed to save authorization code", zap.String("client_id", client.ID), zap.Error(err))
		return nil, "", oautherrors.ServerError(err)
	}
	return code, raw, nil
}

// Redeem validates a code presented at the token endpoint. It does not mark
// the code used; that happens atomically with token creation in
// TokenIssuer.CreateTokenForCode.
func (ci *CodeIssuer) Redeem(ctx context.Context, rawCode string, client *models.Client, redirectURI, codeVerifier string) (*models.AuthorizationCode, error) {
	if rawCode == "" {
		return nil, oautherrors.InvalidRequest("code is required")
	}

	hash := hashToken(rawCode)
	code, err := ci.repo.GetAuthorizationCode(ctx, hash)
	if err != nil {
		return nil, oautherrors.ServerError(err)
	}
	if code == nil {
		return nil, oautherrors.InvalidGrant("Invalid authorization code")
	}

	now := ci.opts.Now()
	if code.Used {
		// A replayed code means it leaked; revoke what it produced.
		n, err := ci.repo.RevokeTokensForCode(ctx, hash, now)
		if err != nil {
			ci.logger.Error("Failed to revoke tokens for replayed code", zap.String("client_id", code.ClientID), zap.Error(err))
		}
		ci.logger.Warn("Authorization code replayed",
			zap.String("client_id", code.ClientID),
			zap.String("code", logPrefix(rawCode)),
			zap.Int64("revoked_tokens", n))
		ci.discard(ctx, hash)
		return nil, oautherrors.InvalidGrant("Authorization code has already been used")
	}
	if !now.Before(code.ExpiresAt) {
		ci.discard(ctx, hash)
		return nil, oautherrors.InvalidGrant("Authorization code has expired")
	}

	if code.ClientID != client.ID {
		ci.logger.Warn("Authorization code presented by another client",
			zap.String("client_id", client.ID),
			zap.String("code_client_id", code.ClientID))
		return nil, oautherrors.InvalidGrant("Authorization code was issued to another client")
	}
	if code.RedirectURI != redirectURI {
		return nil, oautherrors.InvalidGrant("redirect_uri does not match the authorization request")
	}

	if code.CodeChallenge != "" {
		if err := verifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, codeVerifier); err != nil {
			return nil, oautherrors.Wrap(err, oautherrors.KindInvalidGrant, "PKCE verification failed")
		}
	} else if codeVerifier != "" {
		return nil, oautherrors.InvalidGrant("code_verifier sent but no code_challenge was registered")
	}

	return code, nil
}

func (ci *CodeIssuer) discard(ctx context.Context, hash string) {
	if err := ci.repo.DeleteAuthorizationCode(ctx, hash); err != nil {
		ci.logger.Error("Failed to delete authorization code", zap.Error(err))
	}
}
