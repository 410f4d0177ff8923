package oauth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"

	"authorization-server/internal/cache"
	"authorization-server/internal/database"
	"authorization-server/internal/models"
	oautherrors "authorization-server/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthMethod is how a client presented its credentials at the token,
// introspection or revocation endpoint.
type AuthMethod string

const (
	AuthMethodBasic AuthMethod = "client_secret_basic"
	AuthMethodPost  AuthMethod = "client_secret_post"
	AuthMethodNone  AuthMethod = "none"
)

// ClientCredentials are the client authentication inputs parsed from a
// request.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	Method       AuthMethod
}

// Registration describes a new client.
type Registration struct {
	ClientID             string // generated when empty
	Secret               string // generated for confidential clients when empty
	Name                 string
	URI                  string
	LogoURI              string
	RedirectURIs         []string
	Scopes               []string // defaults to the supported scopes
	GrantTypes           []string // defaults to authorization_code + refresh_token
	ResponseTypes        []string
	Confidential         bool
	RequirePKCE          *bool
	AccessTokenLifetime  int
	RefreshTokenLifetime int
	RateLimit            int
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// equalizeTiming runs a bcrypt comparison whose result is discarded so that
// unknown clients cost as much as a wrong secret.
func equalizeTiming(secret string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("unknown-client"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(secret))
}

// ClientRegistry looks up, authenticates and administers clients.
type ClientRegistry struct {
	repo   database.Repository
	cache  cache.Cache
	opts   Options
	logger *zap.Logger
}

// NewClientRegistry creates a registry. c may be nil to disable caching.
func NewClientRegistry(repo database.Repository, c cache.Cache, opts Options, logger *zap.Logger) *ClientRegistry {
	opts.setDefaults()
	return &ClientRegistry{
		repo:   repo,
		cache:  c,
		opts:   opts,
		logger: logger,
	}
}

var errClientAuth = oautherrors.InvalidClient("Client authentication failed")

// Authenticate verifies client credentials. Every failure is the same
// invalid_client error.
func (r *ClientRegistry) Authenticate(ctx context.Context, creds ClientCredentials) (*models.Client, error) {
	if creds.ClientID == "" {
		return nil, errClientAuth
	}

	client, err := r.load(ctx, creds.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil || !client.Active {
		equalizeTiming(creds.ClientSecret)
		r.logger.Info("Client authentication failed", zap.String("client_id", creds.ClientID), zap.String("reason", "unknown or inactive"))
		return nil, errClientAuth
	}

	if !client.Confidential {
		if creds.ClientSecret != "" {
			r.logger.Info("Client authentication failed", zap.String("client_id", client.ID), zap.String("reason", "public client sent a secret"))
			return nil, errClientAuth
		}
		return client, nil
	}

	if creds.ClientSecret == "" || client.SecretHash == "" {
		equalizeTiming(creds.ClientSecret)
		r.logger.Info("Client authentication failed", zap.String("client_id", client.ID), zap.String("reason", "missing secret"))
		return nil, errClientAuth
	}
	if err := bcrypt.CompareHashAndPassword([]byte(client.SecretHash), []byte(creds.ClientSecret)); err != nil {
		r.logger.Info("Client authentication failed", zap.String("client_id", client.ID), zap.String("reason", "secret mismatch"))
		return nil, errClientAuth
	}
	return client, nil
}

// Lookup returns an active client or invalid_client.
func (r *ClientRegistry) Lookup(ctx context.Context, clientID string) (*models.Client, error) {
	if clientID == "" {
		return nil, oautherrors.InvalidRequest("client_id is required")
	}
	client, err := r.load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil || !client.Active {
		return nil, oautherrors.InvalidClient("Unknown client")
	}
	return client, nil
}

// load reads through the cache. Cache failures fall back to the repository.
func (r *ClientRegistry) load(ctx context.Context, clientID string) (*models.Client, error) {
	if r.cache != nil {
		cached, err := r.cache.GetClient(ctx, clientID)
		if err != nil {
			r.logger.Warn("Client cache read failed", zap.String("client_id", clientID), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	client, err := r.repo.GetClientByID(ctx, clientID)
	if err != nil {
		return nil, oautherrors.ServerError(err)
	}
	if client == nil {
		return nil, nil
	}

	if r.cache != nil {
		if err := r.cache.SetClient(ctx, client, r.opts.ClientCacheTTL); err != nil {
			r.logger.Warn("Client cache write failed", zap.String("client_id", clientID), zap.Error(err))
		}
	}
	return client, nil
}

func (r *ClientRegistry) invalidate(ctx context.Context, clientID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.DeleteClient(ctx, clientID); err != nil {
		r.logger.Warn("Client cache eviction failed", zap.String("client_id", clientID), zap.Error(err))
	}
}

// CheckRedirectURI is an exact string match against the registered URIs.
func (r *ClientRegistry) CheckRedirectURI(client *models.Client, redirectURI string) bool {
	return client.HasRedirectURI(redirectURI)
}

func (r *ClientRegistry) CheckGrantType(client *models.Client, grantType string) bool {
	return client.AllowsGrantType(grantType)
}

func (r *ClientRegistry) CheckResponseType(client *models.Client, responseType string) bool {
	return client.AllowsResponseType(responseType)
}

// CheckScope reports whether scope is a subset of the client's scopes.
func (r *ClientRegistry) CheckScope(client *models.Client, scope string) bool {
	return ScopeSubset(scope, client.Scopes)
}

// Register validates and stores a new client. The returned secret is the
// only copy of the raw value.
func (r *ClientRegistry) Register(ctx context.Context, reg Registration) (*models.Client, string, error) {
	if reg.ClientID == "" {
		reg.ClientID = uuid.New().String()
	}
	if len(reg.GrantTypes) == 0 {
		reg.GrantTypes = []string{models.GrantAuthorizationCode, models.GrantRefreshToken}
	}
	if len(reg.Scopes) == 0 {
		reg.Scopes = append([]string(nil), r.opts.SupportedScopes...)
	}

	if err := validateGrantTypes(reg.GrantTypes, reg.Confidential); err != nil {
		return nil, "", err
	}
	if err := validateRedirectURIs(reg.RedirectURIs); err != nil {
		return nil, "", err
	}
	if contains(reg.GrantTypes, models.GrantAuthorizationCode) && len(reg.RedirectURIs) == 0 {
		return nil, "", oautherrors.InvalidRequest("authorization_code clients need at least one redirect URI")
	}
	for _, rt := range reg.ResponseTypes {
		if rt != models.ResponseTypeCode {
			return nil, "", oautherrors.InvalidRequest("only the code response type is supported")
		}
	}

	requirePKCE := !reg.Confidential
	if reg.RequirePKCE != nil {
		if !*reg.RequirePKCE && !reg.Confidential {
			return nil, "", oautherrors.InvalidRequest("public clients must require PKCE")
		}
		requirePKCE = *reg.RequirePKCE
	}

	secret := reg.Secret
	var secretHash string
	if reg.Confidential {
		if secret == "" {
			var err error
			if secret, err = randomToken(tokenBytes); err != nil {
				return nil, "", oautherrors.ServerError(err)
			}
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", oautherrors.ServerError(err)
		}
		secretHash = string(hash)
	} else if secret != "" {
		return nil, "", oautherrors.InvalidRequest("public clients cannot have a secret")
	}

	accessLifetime := reg.AccessTokenLifetime
	if accessLifetime <= 0 {
		accessLifetime = int(r.opts.DefaultAccessTokenTTL.Seconds())
	}
	refreshLifetime := reg.RefreshTokenLifetime
	if refreshLifetime <= 0 {
		refreshLifetime = int(r.opts.DefaultRefreshTokenTTL.Seconds())
	}

	now := r.opts.Now()
	client := &models.Client{
		ID:                   reg.ClientID,
		SecretHash:           secretHash,
		Name:                 reg.Name,
		URI:                  reg.URI,
		LogoURI:              reg.LogoURI,
		RedirectURIs:         reg.RedirectURIs,
		Scopes:               reg.Scopes,
		GrantTypes:           reg.GrantTypes,
		ResponseTypes:        reg.ResponseTypes,
		Confidential:         reg.Confidential,
		RequirePKCE:          requirePKCE,
		AccessTokenLifetime:  accessLifetime,
		RefreshTokenLifetime: refreshLifetime,
		RateLimit:            reg.RateLimit,
		Active:               true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := r.repo.CreateClient(ctx, client); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return nil, "", oautherrors.InvalidRequest("client_id is already registered")
		}
		return nil, "", oautherrors.ServerError(err)
	}
	r.invalidate(ctx, client.ID)

	r.logger.Info("Client registered", zap.String("client_id", client.ID), zap.Bool("confidential", client.Confidential))
	if !reg.Confidential {
		secret = ""
	}
	return client, secret, nil
}

// List returns every client, active or not.
func (r *ClientRegistry) List(ctx context.Context) ([]*models.Client, error) {
	clients, err := r.repo.ListClients(ctx)
	if err != nil {
		return nil, oautherrors.ServerError(err)
	}
	return clients, nil
}

// RotateSecret replaces a confidential client's secret and returns the new
// raw value.
func (r *ClientRegistry) RotateSecret(ctx context.Context, clientID string) (string, error) {
	var secret string
	err := r.update(ctx, clientID, func(c *models.Client) error {
		if !c.Confidential {
			return oautherrors.InvalidRequest("public clients have no secret")
		}
		raw, err := randomToken(tokenBytes)
		if err != nil {
			return oautherrors.ServerError(err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
		if err != nil {
			return oautherrors.ServerError(err)
		}
		c.SecretHash = string(hash)
		secret = raw
		return nil
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}

// UpdateScopes replaces the client's allowed scopes.
func (r *ClientRegistry) UpdateScopes(ctx context.Context, clientID string, scopes []string) error {
	return r.update(ctx, clientID, func(c *models.Client) error {
		c.Scopes = scopes
		return nil
	})
}

// UpdateGrantTypes replaces the client's allowed grant types.
func (r *ClientRegistry) UpdateGrantTypes(ctx context.Context, clientID string, grantTypes []string) error {
	return r.update(ctx, clientID, func(c *models.Client) error {
		if err := validateGrantTypes(grantTypes, c.Confidential); err != nil {
			return err
		}
		c.GrantTypes = grantTypes
		return nil
	})
}

// Deactivate disables a client. Its tokens remain stored and introspect as
// inactive.
func (r *ClientRegistry) Deactivate(ctx context.Context, clientID string) error {
	return r.update(ctx, clientID, func(c *models.Client) error {
		c.Active = false
		return nil
	})
}

func (r *ClientRegistry) update(ctx context.Context, clientID string, mutate func(*models.Client) error) error {
	client, err := r.repo.GetClientByID(ctx, clientID)
	if err != nil {
		return oautherrors.ServerError(err)
	}
	if client == nil {
		return oautherrors.InvalidClient("Unknown client")
	}
	if err := mutate(client); err != nil {
		return err
	}
	client.UpdatedAt = r.opts.Now()

	if err := r.repo.UpdateClient(ctx, client); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return oautherrors.InvalidClient("Unknown client")
		}
		return oautherrors.ServerError(err)
	}
	r.invalidate(ctx, clientID)
	r.logger.Info("Client updated", zap.String("client_id", clientID))
	return nil
}

func validateGrantTypes(grantTypes []string, confidential bool) error {
	for _, gt := range grantTypes {
		if !contains(models.SupportedGrantTypes, gt) {
			return oautherrors.InvalidRequest("unsupported grant type " + gt)
		}
		if gt == models.GrantClientCredentials && !confidential {
			return oautherrors.InvalidRequest("client_credentials requires a confidential client")
		}
	}
	return nil
}

func validateRedirectURIs(uris []string) error {
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || !u.IsAbs() {
			return oautherrors.InvalidRequest("redirect URIs must be absolute: " + raw)
		}
		if strings.Contains(raw, "#") {
			return oautherrors.InvalidRequest("redirect URIs must not contain a fragment: " + raw)
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// RateLimit returns the per-minute request limit configured for clientID,
// or 0 when the client is unknown or uses the server default.
func (r *ClientRegistry) RateLimit(ctx context.Context, clientID string) int {
	client, err := r.load(ctx, clientID)
	if err != nil || client == nil {
		return 0
	}
	return client.RateLimit
}
