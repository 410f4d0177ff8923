package oauth

import (
	"context"
	"net/url"

	"authorization-server/internal/auth"
	"authorization-server/internal/models"
	oautherrors "authorization-server/pkg/errors"

	"go.uber.org/zap"
)

// AuthorizeRequest holds the authorize endpoint parameters.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizeGrant is an authorize request whose client and redirect URI have
// been verified. It is what the consent step approves or denies.
type AuthorizeGrant struct {
	Client *models.Client
	// RedirectURI is where the user agent is sent back to.
	RedirectURI string
	// RequestedRedirectURI is the raw redirect_uri parameter, empty when it
	// was omitted. The token request must repeat it.
	RequestedRedirectURI string
	Scope                string
	State                string
	Nonce                string
	CodeChallenge        string
	CodeChallengeMethod  string
}

// TokenRequest holds the token endpoint parameters.
type TokenRequest struct {
	GrantType    string
	Credentials  ClientCredentials
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Scope        string
}

// GrantProcessor runs the authorization-code, refresh-token and
// client-credentials flows over the registry, code issuer and token issuer.
type GrantProcessor struct {
	registry *ClientRegistry
	codes    *CodeIssuer
	tokens   *TokenIssuer
	signer   *auth.IDTokenSigner
	opts     Options
	metrics  *Metrics
	logger   *zap.Logger
}

// NewGrantProcessor creates a processor. signer may be nil, in which case
// no id_token is issued.
func NewGrantProcessor(registry *ClientRegistry, codes *CodeIssuer, tokens *TokenIssuer, signer *auth.IDTokenSigner, opts Options, metrics *Metrics, logger *zap.Logger) *GrantProcessor {
	opts.setDefaults()
	return &GrantProcessor{
		registry: registry,
		codes:    codes,
		tokens:   tokens,
		signer:   signer,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

// ValidateAuthorize checks an authorize request. The returned grant is
// non-nil whenever the redirect URI could be trusted, even when err is
// also set: callers redirect errors to grant.RedirectURI and render a
// local page otherwise. PKCE errors are reported without a grant, ahead
// of every other check, so they never reach the client's redirect URI.
func (gp *GrantProcessor) ValidateAuthorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeGrant, error) {
	grant, err := gp.validateAuthorize(ctx, req)
	gp.metrics.failed(err)
	return grant, err
}

func (gp *GrantProcessor) validateAuthorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeGrant, error) {
	client, err := gp.registry.Lookup(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		if len(client.RedirectURIs) != 1 {
			return nil, oautherrors.InvalidRequest("redirect_uri is required")
		}
		redirectURI = client.RedirectURIs[0]
	} else if !gp.registry.CheckRedirectURI(client, redirectURI) {
		gp.logger.Warn("Unregistered redirect_uri", zap.String("client_id", client.ID), zap.String("redirect_uri", redirectURI))
		return nil, oautherrors.InvalidRequest("redirect_uri is not registered for this client")
	}

	grant := &AuthorizeGrant{
		Client:               client,
		RedirectURI:          redirectURI,
		RequestedRedirectURI: req.RedirectURI,
		State:                req.State,
		Nonce:                req.Nonce,
	}

	// PKCE problems are reported before anything can reach the redirect URI.
	if req.CodeChallenge == "" {
		if gp.pkceRequired(client) {
			return nil, oautherrors.InvalidRequest("code_challenge is required")
		}
		if req.CodeChallengeMethod != "" {
			return nil, oautherrors.InvalidRequest("code_challenge_method sent without code_challenge")
		}
	} else {
		method, err := checkChallenge(req.CodeChallenge, req.CodeChallengeMethod, gp.opts.AllowPKCEPlain)
		if err != nil {
			return nil, oautherrors.Wrap(err, oautherrors.KindInvalidRequest, err.Error())
		}
		grant.CodeChallenge = req.CodeChallenge
		grant.CodeChallengeMethod = method
	}

	switch {
	case req.ResponseType == "":
		return grant, oautherrors.InvalidRequest("response_type is required")
	case req.ResponseType != models.ResponseTypeCode:
		return grant, oautherrors.UnsupportedResponseType("Only the code response type is supported")
	case !gp.registry.CheckResponseType(client, req.ResponseType):
		return grant, oautherrors.UnauthorizedClient("Client may not use the authorization code flow")
	}

	if !gp.registry.CheckScope(client, req.Scope) {
		return grant, oautherrors.InvalidScope("Client is not authorized for one or more requested scopes")
	}
	grant.Scope = JoinScope(ParseScope(req.Scope))
	return grant, nil
}

func (gp *GrantProcessor) pkceRequired(client *models.Client) bool {
	return client.RequiresPKCE() || !gp.opts.AllowConfidentialWithoutPKCE
}

// Approve issues a code for userID and returns the redirect carrying it.
func (gp *GrantProcessor) Approve(ctx context.Context, grant *AuthorizeGrant, userID string) (string, error) {
	if userID == "" {
		return "", oautherrors.AccessDenied("No authenticated user")
	}

	_, raw, err := gp.codes.Issue(ctx, grant.Client, userID, IssueParams{
		RedirectURI:         grant.RequestedRedirectURI,
		Scope:               grant.Scope,
		State:               grant.State,
		Nonce:               grant.Nonce,
		CodeChallenge:       grant.CodeChallenge,
		CodeChallengeMethod: grant.CodeChallengeMethod,
	})
	if err != nil {
		gp.metrics.failed(err)
		return "", err
	}
	gp.metrics.codeIssued()
	gp.logger.Info("Authorization code issued",
		zap.String("client_id", grant.Client.ID),
		zap.String("user_id", userID),
		zap.String("scope", grant.Scope))

	params := url.Values{"code": {raw}}
	if grant.State != "" {
		params.Set("state", grant.State)
	}
	return appendQuery(grant.RedirectURI, params), nil
}

// Deny returns the redirect telling the client the user refused consent.
func (gp *GrantProcessor) Deny(grant *AuthorizeGrant) string {
	err := oautherrors.AccessDenied("The user denied the request")
	gp.metrics.failed(err)
	return gp.ErrorRedirect(grant, err)
}

// ErrorRedirect renders err onto the grant's redirect URI.
func (gp *GrantProcessor) ErrorRedirect(grant *AuthorizeGrant, err error) string {
	oe := oautherrors.From(err)
	params := url.Values{"error": {string(oe.Kind)}}
	if oe.Description != "" {
		params.Set("error_description", oe.Description)
	}
	if grant.State != "" {
		params.Set("state", grant.State)
	}
	return appendQuery(grant.RedirectURI, params)
}

// Token handles a token endpoint request.
func (gp *GrantProcessor) Token(ctx context.Context, req TokenRequest) (*models.TokenResponse, error) {
	resp, err := gp.token(ctx, req)
	if err != nil {
		gp.metrics.failed(err)
		oe := oautherrors.From(err)
		fields := []zap.Field{
			zap.String("client_id", req.Credentials.ClientID),
			zap.String("grant_type", req.GrantType),
			zap.String("error", string(oe.Kind)),
		}
		if oe.Kind == oautherrors.KindServerError {
			gp.logger.Error("Token request failed", append(fields, zap.Error(oe.Err))...)
		} else {
			gp.logger.Info("Token request rejected", append(fields, zap.String("description", oe.Description))...)
		}
		return nil, oe
	}
	gp.metrics.tokenIssued(req.GrantType)
	return resp, nil
}

func (gp *GrantProcessor) token(ctx context.Context, req TokenRequest) (*models.TokenResponse, error) {
	switch req.GrantType {
	case "":
		return nil, oautherrors.InvalidRequest("grant_type is required")
	case models.GrantAuthorizationCode, models.GrantRefreshToken, models.GrantClientCredentials:
	default:
		return nil, oautherrors.UnsupportedGrantType("Unsupported grant type")
	}

	client, err := gp.registry.Authenticate(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}
	if !gp.registry.CheckGrantType(client, req.GrantType) {
		return nil, oautherrors.UnauthorizedClient("Client is not allowed to use this grant type")
	}

	switch req.GrantType {
	case models.GrantAuthorizationCode:
		return gp.authorizationCode(ctx, client, req)
	case models.GrantRefreshToken:
		return gp.refreshToken(ctx, client, req)
	default:
		return gp.clientCredentials(ctx, client, req)
	}
}

func (gp *GrantProcessor) authorizationCode(ctx context.Context, client *models.Client, req TokenRequest) (*models.TokenResponse, error) {
	code, err := gp.codes.Redeem(ctx, req.Code, client, req.RedirectURI, req.CodeVerifier)
	if err != nil {
		return nil, err
	}
	issued, err := gp.tokens.CreateTokenForCode(ctx, client, code)
	if err != nil {
		return nil, err
	}

	resp := issued.Response(gp.opts.Now())
	if gp.signer != nil && HasScope(code.Scope, models.ScopeOpenID) {
		idToken, err := gp.signer.Sign(code.UserID, client.ID, code.Nonce, code.CreatedAt, gp.tokens.accessTTL(client))
		if err != nil {
			return nil, oautherrors.ServerError(err)
		}
		resp.IDToken = idToken
	}

	gp.logger.Info("Authorization code exchanged",
		zap.String("client_id", client.ID),
		zap.String("user_id", code.UserID),
		zap.String("scope", code.Scope))
	return resp, nil
}

func (gp *GrantProcessor) refreshToken(ctx context.Context, client *models.Client, req TokenRequest) (*models.TokenResponse, error) {
	issued, err := gp.tokens.Refresh(ctx, client, req.RefreshToken, req.Scope)
	if err != nil {
		return nil, err
	}
	gp.logger.Info("Refresh token rotated",
		zap.String("client_id", client.ID),
		zap.String("family_id", issued.Token.FamilyID))
	return issued.Response(gp.opts.Now()), nil
}

func (gp *GrantProcessor) clientCredentials(ctx context.Context, client *models.Client, req TokenRequest) (*models.TokenResponse, error) {
	if !client.Confidential {
		return nil, oautherrors.UnauthorizedClient("client_credentials requires a confidential client")
	}

	scope := JoinScope(client.Scopes)
	if req.Scope != "" {
		if !gp.registry.CheckScope(client, req.Scope) {
			return nil, oautherrors.InvalidScope("Client is not authorized for one or more requested scopes")
		}
		scope = JoinScope(ParseScope(req.Scope))
	}

	issued, err := gp.tokens.CreateToken(ctx, client, "", scope)
	if err != nil {
		return nil, err
	}
	gp.logger.Info("Client credentials token issued", zap.String("client_id", client.ID), zap.String("scope", scope))
	return issued.Response(gp.opts.Now()), nil
}

// appendQuery adds params to uri, keeping any query it already has.
func appendQuery(uri string, params url.Values) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
