package oauth

import (
	"time"

	"authorization-server/internal/auth"
	"authorization-server/internal/cache"
	"authorization-server/internal/database"

	"go.uber.org/zap"
)

// Options are the protocol settings shared by every component.
type Options struct {
	Issuer                 string
	AuthCodeTTL            time.Duration
	DefaultAccessTokenTTL  time.Duration
	DefaultRefreshTokenTTL time.Duration
	SupportedScopes        []string

	// AllowConfidentialWithoutPKCE lets confidential clients that do not
	// set require_pkce skip PKCE.
	AllowConfidentialWithoutPKCE bool
	AllowPKCEPlain               bool

	ClientCacheTTL time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.AuthCodeTTL <= 0 {
		o.AuthCodeTTL = 10 * time.Minute
	}
	if o.DefaultAccessTokenTTL <= 0 {
		o.DefaultAccessTokenTTL = time.Hour
	}
	if o.DefaultRefreshTokenTTL <= 0 {
		o.DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	}
	if o.ClientCacheTTL <= 0 {
		o.ClientCacheTTL = 15 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Server bundles the protocol components. It is built once at startup and
// handed to the HTTP layer.
type Server struct {
	Options       Options
	Registry      *ClientRegistry
	Codes         *CodeIssuer
	Tokens        *TokenIssuer
	Grants        *GrantProcessor
	Introspection *IntrospectionService
	UserInfo      *UserInfoResolver
	Keys          *auth.KeyManager
}

// NewServer wires the components over one repository and cache. metrics
// may be nil.
func NewServer(repo database.Repository, c cache.Cache, keys *auth.KeyManager, opts Options, metrics *Metrics, logger *zap.Logger) *Server {
	opts.setDefaults()

	registry := NewClientRegistry(repo, c, opts, logger)
	codes := NewCodeIssuer(repo, opts, logger)
	tokens := NewTokenIssuer(repo, opts, metrics, logger)

	var signer *auth.IDTokenSigner
	if keys != nil {
		signer = auth.NewIDTokenSigner(keys, opts.Issuer)
	}

	return &Server{
		Options:       opts,
		Registry:      registry,
		Codes:         codes,
		Tokens:        tokens,
		Grants:        NewGrantProcessor(registry, codes, tokens, signer, opts, metrics, logger),
		Introspection: NewIntrospectionService(registry, tokens, repo, opts, metrics, logger),
		UserInfo:      NewUserInfoResolver(repo, logger),
		Keys:          keys,
	}
}
