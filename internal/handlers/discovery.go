package handlers

import (
	"encoding/json"
	"net/http"

	"authorization-server/internal/models"
	"authorization-server/internal/oauth"

	"go.uber.org/zap"
)

// DiscoveryHandler serves the RFC 8414 authorization server metadata and
// its OpenID Connect variant.
type DiscoveryHandler struct {
	metadata models.ServerMetadata
	logger   *zap.Logger
}

// NewDiscoveryHandler builds the metadata once. Endpoint URLs are rooted at
// baseURL, which is usually the issuer.
func NewDiscoveryHandler(baseURL string, opts oauth.Options, logger *zap.Logger) *DiscoveryHandler {
	challengeMethods := []string{models.PKCEMethodS256}
	if opts.AllowPKCEPlain {
		challengeMethods = append(challengeMethods, models.PKCEMethodPlain)
	}

	return &DiscoveryHandler{
		metadata: models.ServerMetadata{
			Issuer:                 opts.Issuer,
			AuthorizationEndpoint:  baseURL + "/oauth/authorize",
			TokenEndpoint:          baseURL + "/oauth/token",
			RevocationEndpoint:     baseURL + "/oauth/revoke",
			IntrospectionEndpoint:  baseURL + "/oauth/introspect",
			UserinfoEndpoint:       baseURL + "/oauth/userinfo",
			JwksURI:                baseURL + "/oauth/jwks",
			ScopesSupported:        opts.SupportedScopes,
			ResponseTypesSupported: []string{models.ResponseTypeCode},
			ResponseModesSupported: []string{"query"},
			GrantTypesSupported:    models.SupportedGrantTypes,
			TokenEndpointAuthMethodsSupported: []string{
				string(oauth.AuthMethodBasic),
				string(oauth.AuthMethodPost),
				string(oauth.AuthMethodNone),
			},
			CodeChallengeMethodsSupported: challengeMethods,
		},
		logger: logger,
	}
}

// HandleMetadata handles GET /.well-known/oauth-authorization-server
// @Summary     Authorization server metadata
// @Description RFC 8414 discovery document
// @Tags        discovery
// @Produce     application/json
// @Success     200  {object}  models.ServerMetadata
// @Router      /.well-known/oauth-authorization-server [get]
func (h *DiscoveryHandler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, h.metadata)
}

// HandleOIDCConfiguration handles GET /.well-known/openid-configuration
// @Summary     OpenID Connect discovery
// @Description The RFC 8414 document plus the OpenID Connect fields
// @Tags        discovery
// @Produce     application/json
// @Success     200  {object}  models.ServerMetadata
// @Router      /.well-known/openid-configuration [get]
func (h *DiscoveryHandler) HandleOIDCConfiguration(w http.ResponseWriter, r *http.Request) {
	md := h.metadata
	md.SubjectTypesSupported = []string{"public"}
	md.IDTokenSigningAlgValuesSupported = []string{"RS256"}
	md.ClaimsSupported = []string{
		"sub",
		"iss",
		"aud",
		"exp",
		"iat",
		"auth_time",
		"nonce",
		"name",
		"preferred_username",
		"picture",
		"email",
		"email_verified",
	}
	h.write(w, r, md)
}

func (h *DiscoveryHandler) write(w http.ResponseWriter, r *http.Request, md models.ServerMetadata) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		h.logger.Error("Failed to marshal server metadata", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
