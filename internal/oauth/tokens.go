package oauth

import (
	"context"
	"errors"
	"time"

	"authorization-server/internal/database"
	"authorization-server/internal/models"
	oautherrors "authorization-server/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenHint is the token_type_hint of RFC 7009 / RFC 7662.
type TokenHint string

const (
	HintAccessToken  TokenHint = "access_token"
	HintRefreshToken TokenHint = "refresh_token"
)

// Issued is a persisted token plus the raw values handed to the client.
type Issued struct {
	Token        *models.Token
	AccessToken  string
	RefreshToken string
}

// Response renders the RFC 6749 §5.1 body.
func (i *Issued) Response(now time.Time) *models.TokenResponse {
	expiresIn := int64(i.Token.AccessExpiresAt.Sub(now).Round(time.Second) / time.Second)
	if expiresIn < 0 {
		expiresIn = 0
	}
	return &models.TokenResponse{
		AccessToken:  i.AccessToken,
		TokenType:    i.Token.TokenType,
		ExpiresIn:    expiresIn,
		Scope:        i.Token.Scope,
		RefreshToken: i.RefreshToken,
	}
}

// TokenIssuer mints, rotates, looks up and revokes opaque bearer tokens.
type TokenIssuer struct {
	repo    database.Repository
	opts    Options
	metrics *Metrics
	logger  *zap.Logger
}

func NewTokenIssuer(repo database.Repository, opts Options, metrics *Metrics, logger *zap.Logger) *TokenIssuer {
	opts.setDefaults()
	return &TokenIssuer{repo: repo, opts: opts, metrics: metrics, logger: logger}
}

func (ti *TokenIssuer) accessTTL(c *models.Client) time.Duration {
	if c.AccessTokenLifetime > 0 {
		return c.AccessTokenTTL()
	}
	return ti.opts.DefaultAccessTokenTTL
}

func (ti *TokenIssuer) refreshTTL(c *models.Client) time.Duration {
	if c.RefreshTokenLifetime > 0 {
		return c.RefreshTokenTTL()
	}
	return ti.opts.DefaultRefreshTokenTTL
}

// mint builds an unsaved token. familyID is generated when empty.
func (ti *TokenIssuer) mint(client *models.Client, userID, scope, familyID string, withRefresh bool, now time.Time) (*Issued, error) {
	access, err := randomToken(tokenBytes)
	if err != nil {
		return nil, oautherrors.ServerError(err)
	}
	if familyID == "" {
		familyID = uuid.New().String()
	}

	tok := &models.Token{
		ID:              uuid.New().String(),
		FamilyID:        familyID,
		ClientID:        client.ID,
		UserID:          userID,
		TokenType:       models.TokenTypeBearer,
		AccessTokenHash: hashToken(access),
		Scope:           scope,
		IssuedAt:        now,
		AccessExpiresAt: now.Add(ti.accessTTL(client)),
	}
	issued := &Issued{Token: tok, AccessToken: access}

	if withRefresh && client.AllowsGrantType(models.GrantRefreshToken) {
		refresh, err := randomToken(tokenBytes)
		if err != nil {
			return nil, oautherrors.ServerError(err)
		}
		exp := now.Add(ti.refreshTTL(client))
		tok.RefreshTokenHash = hashToken(refresh)
		tok.RefreshExpiresAt = &exp
		issued.RefreshToken = refresh
	}
	return issued, nil
}

// CreateToken issues and stores a token. userID is empty for
// client_credentials, which never receives a refresh token.
func (ti *TokenIssuer) CreateToken(ctx context.Context, client *models.Client, userID, scope string) (*Issued, error) {
	issued, err := ti.mint(client, userID, scope, "", userID != "", ti.opts.Now())
	if err != nil {
		return nil, err
	}
	if err := ti.repo.CreateToken(ctx, issued.Token); err != nil {
		ti.logger.Error("Failed to store token", zap.String("client_id", client.ID), zap.Error(err))
		return nil, oautherrors.ServerError(err)
	}
	return issued, nil
}

// CreateTokenForCode issues a token for a validated code, marking the code
// used in the same transaction. Losing a concurrent redemption yields
// invalid_grant.
func (ti *TokenIssuer) CreateTokenForCode(ctx context.Context, client *models.Client, code *models.AuthorizationCode) (*Issued, error) {
	now := ti.opts.Now()
	issued, err := ti.mint(client, code.UserID, code.Scope, "", true, now)
	if err != nil {
		return nil, err
	}
	issued.Token.CodeHash = code.CodeHash

	if err := ti.repo.RedeemAuthorizationCode(ctx, code.CodeHash, issued.Token, now); err != nil {
		if errors.Is(err, database.ErrCodeNotRedeemable) {
			return nil, oautherrors.InvalidGrant("Authorization code has already been used")
		}
		return nil, oautherrors.ServerError(err)
	}
	return issued, nil
}

// Refresh rotates a refresh token. Presenting a revoked refresh token
// revokes its whole family.
func (ti *TokenIssuer) Refresh(ctx context.Context, client *models.Client, rawRefresh, requestedScope string) (*Issued, error) {
	if rawRefresh == "" {
		return nil, oautherrors.InvalidRequest("refresh_token is required")
	}

	old, err := ti.repo.GetTokenByRefreshHash(ctx, hashToken(rawRefresh))
	if err != nil {
		return nil, oautherrors.ServerError(err)
	}
	if old == nil || old.ClientID != client.ID {
		return nil, oautherrors.InvalidGrant("Invalid refresh token")
	}

	now := ti.opts.Now()
	if old.Revoked {
		n, err := ti.repo.RevokeTokenFamily(ctx, old.FamilyID, now)
		if err != nil {
			ti.logger.Error("Failed to revoke token family", zap.String("family_id", old.FamilyID), zap.Error(err))
		}
		ti.metrics.refreshReused()
		ti.logger.Warn("Revoked refresh token presented",
			zap.String("client_id", client.ID),
			zap.String("family_id", old.FamilyID),
			zap.Int64("revoked_tokens", n))
		return nil, oautherrors.InvalidGrant("Refresh token has been revoked")
	}
	if !old.RefreshValid(now) {
		return nil, oautherrors.InvalidGrant("Refresh token has expired")
	}

	scope := old.Scope
	if requestedScope != "" {
		if !ScopeSubset(requestedScope, ParseScope(old.Scope)) {
			return nil, oautherrors.InvalidScope("Requested scope exceeds the original grant")
		}
		scope = JoinScope(ParseScope(requestedScope))
	}

	next, err := ti.mint(client, old.UserID, scope, old.FamilyID, true, now)
	if err != nil {
		return nil, err
	}
	if err := ti.repo.RotateToken(ctx, old.ID, next.Token, now); err != nil {
		if errors.Is(err, database.ErrTokenNotRotatable) {
			return nil, oautherrors.InvalidGrant("Refresh token has already been used")
		}
		return nil, oautherrors.ServerError(err)
	}
	return next, nil
}

// Lookup resolves a raw token, trying the hinted kind first. It returns nil
// when nothing matches, whatever the token's state.
func (ti *TokenIssuer) Lookup(ctx context.Context, raw string, hint TokenHint) (*models.Token, TokenHint, error) {
	if raw == "" {
		return nil, "", nil
	}
	hash := hashToken(raw)

	order := []TokenHint{HintAccessToken, HintRefreshToken}
	if hint == HintRefreshToken {
		order = []TokenHint{HintRefreshToken, HintAccessToken}
	}

	for _, kind := range order {
		var tok *models.Token
		var err error
		if kind == HintAccessToken {
			tok, err = ti.repo.GetTokenByAccessHash(ctx, hash)
		} else {
			tok, err = ti.repo.GetTokenByRefreshHash(ctx, hash)
		}
		if err != nil {
			return nil, "", oautherrors.ServerError(err)
		}
		if tok != nil {
			return tok, kind, nil
		}
	}
	return nil, "", nil
}

// Active reports whether tok, found as kind, is usable at the issuer's
// current time.
func (ti *TokenIssuer) Active(tok *models.Token, kind TokenHint) bool {
	now := ti.opts.Now()
	if kind == HintRefreshToken {
		return tok.RefreshValid(now)
	}
	return tok.IsValid(now)
}

// Revoke invalidates a token and its paired access/refresh value. Unknown
// tokens and tokens of other clients are ignored.
func (ti *TokenIssuer) Revoke(ctx context.Context, client *models.Client, raw string, hint TokenHint) error {
	tok, _, err := ti.Lookup(ctx, raw, hint)
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if tok.ClientID != client.ID {
		ti.logger.Warn("Revocation of another client's token ignored",
			zap.String("client_id", client.ID),
			zap.String("token_client_id", tok.ClientID))
		return nil
	}
	if tok.Revoked {
		return nil
	}

	if err := ti.repo.RevokeToken(ctx, tok.ID, ti.opts.Now()); err != nil {
		return oautherrors.ServerError(err)
	}
	ti.metrics.revoked()
	ti.logger.Info("Token revoked", zap.String("client_id", client.ID), zap.String("token_id", tok.ID))
	return nil
}

// ResolveAccessToken returns the live access token for raw or an
// invalid_token error.
func (ti *TokenIssuer) ResolveAccessToken(ctx context.Context, raw string) (*models.Token, error) {
	tok, kind, err := ti.Lookup(ctx, raw, HintAccessToken)
	if err != nil {
		return nil, err
	}
	if tok == nil || kind != HintAccessToken || !tok.IsValid(ti.opts.Now()) {
		return nil, oautherrors.InvalidToken("The access token is invalid or has expired")
	}
	return tok, nil
}
