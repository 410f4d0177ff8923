package models

import (
	"strings"
	"time"
)

// Grant types.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
)

// SupportedGrantTypes are the only grant types this server implements.
var SupportedGrantTypes = []string{GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials}

// Response types and PKCE methods.
const (
	ResponseTypeCode = "code"

	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"

	TokenTypeBearer = "Bearer"

	ScopeOpenID  = "openid"
	ScopeProfile = "profile"
	ScopeEmail   = "email"
)

// Default token lifetimes in seconds.
const (
	DefaultAccessTokenLifetime  = 3600
	DefaultRefreshTokenLifetime = 2592000
)

// Client is a registered OAuth2 application.
type Client struct {
	ID                   string    `db:"client_id" json:"client_id"`
	SecretHash           string    `db:"client_secret_hash" json:"client_secret_hash,omitempty"` // bcrypt, confidential clients only
	Name                 string    `db:"client_name" json:"client_name"`
	URI                  string    `db:"client_uri" json:"client_uri,omitempty"`
	LogoURI              string    `db:"logo_uri" json:"logo_uri,omitempty"`
	RedirectURIs         []string  `db:"redirect_uris" json:"redirect_uris"`
	Scopes               []string  `db:"scopes" json:"scopes"`
	GrantTypes           []string  `db:"grant_types" json:"grant_types"`
	ResponseTypes        []string  `db:"response_types" json:"response_types"`
	Confidential         bool      `db:"confidential" json:"confidential"`
	RequirePKCE          bool      `db:"require_pkce" json:"require_pkce"`
	AccessTokenLifetime  int       `db:"access_token_lifetime" json:"access_token_lifetime"`
	RefreshTokenLifetime int       `db:"refresh_token_lifetime" json:"refresh_token_lifetime"`
	RateLimit            int       `db:"rate_limit" json:"rate_limit"`
	Active               bool      `db:"active" json:"active"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// IsPublic reports whether the client cannot hold a secret.
func (c *Client) IsPublic() bool {
	return !c.Confidential
}

// RequiresPKCE is true for public clients regardless of the stored flag.
func (c *Client) RequiresPKCE() bool {
	return c.RequirePKCE || c.IsPublic()
}

func (c *Client) AllowsGrantType(grantType string) bool {
	return contains(c.GrantTypes, grantType)
}

func (c *Client) AllowsResponseType(responseType string) bool {
	if len(c.ResponseTypes) == 0 {
		return responseType == ResponseTypeCode && c.AllowsGrantType(GrantAuthorizationCode)
	}
	return contains(c.ResponseTypes, responseType)
}

func (c *Client) HasRedirectURI(uri string) bool {
	return contains(c.RedirectURIs, uri)
}

// AccessTokenTTL returns the configured access token lifetime.
func (c *Client) AccessTokenTTL() time.Duration {
	if c.AccessTokenLifetime <= 0 {
		return DefaultAccessTokenLifetime * time.Second
	}
	return time.Duration(c.AccessTokenLifetime) * time.Second
}

// RefreshTokenTTL returns the configured refresh token lifetime.
func (c *Client) RefreshTokenTTL() time.Duration {
	if c.RefreshTokenLifetime <= 0 {
		return DefaultRefreshTokenLifetime * time.Second
	}
	return time.Duration(c.RefreshTokenLifetime) * time.Second
}

// AuthorizationCode is a single-use credential. Only the SHA-256 hash of
// the code value is stored.
type AuthorizationCode struct {
	CodeHash            string    `db:"code_hash"`
	ClientID            string    `db:"client_id"`
	UserID              string    `db:"user_id"`
	RedirectURI         string    `db:"redirect_uri"`
	Scope               string    `db:"scope"`
	State               string    `db:"state"`
	Nonce               string    `db:"nonce"`
	CodeChallenge       string    `db:"code_challenge"`
	CodeChallengeMethod string    `db:"code_challenge_method"`
	CreatedAt           time.Time `db:"created_at"`
	ExpiresAt           time.Time `db:"expires_at"`
	Used                bool      `db:"used"`
}

// IsValid reports whether the code can still be redeemed at now.
func (a *AuthorizationCode) IsValid(now time.Time) bool {
	return !a.Used && now.Before(a.ExpiresAt)
}

// Token is an issued access token with an optional refresh token. Token
// values are stored as SHA-256 hashes.
type Token struct {
	ID               string     `db:"id"`
	FamilyID         string     `db:"family_id"` // shared by every rotation of one grant
	ClientID         string     `db:"client_id"`
	UserID           string     `db:"user_id"` // empty for client_credentials
	CodeHash         string     `db:"code_hash"`
	TokenType        string     `db:"token_type"`
	AccessTokenHash  string     `db:"access_token_hash"`
	RefreshTokenHash string     `db:"refresh_token_hash"`
	Scope            string     `db:"scope"`
	IssuedAt         time.Time  `db:"issued_at"`
	AccessExpiresAt  time.Time  `db:"access_expires_at"`
	RefreshExpiresAt *time.Time `db:"refresh_expires_at"`
	Revoked          bool       `db:"revoked"`
	RevokedAt        *time.Time `db:"revoked_at"`
}

// IsValid reports whether the access token is usable at now.
func (t *Token) IsValid(now time.Time) bool {
	return !t.Revoked && now.Before(t.AccessExpiresAt)
}

// RefreshValid reports whether the refresh token is usable at now.
func (t *Token) RefreshValid(now time.Time) bool {
	if t.Revoked || t.RefreshTokenHash == "" || t.RefreshExpiresAt == nil {
		return false
	}
	return now.Before(*t.RefreshExpiresAt)
}

// HasScope reports whether the granted scope includes s.
func (t *Token) HasScope(s string) bool {
	return contains(strings.Fields(t.Scope), s)
}

// User is the resource owner as seen by this server. Users are managed by
// the login system and only referenced here.
type User struct {
	ID            string    `db:"id"`
	Username      string    `db:"username"`
	FullName      string    `db:"full_name"`
	Picture       string    `db:"picture"`
	Email         string    `db:"email"`
	EmailVerified bool      `db:"email_verified"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// TokenResponse represents the OAuth2 token response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// ErrorResponse is the RFC 6749 §5.2 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// IntrospectionResponse is the RFC 7662 response body.
type IntrospectionResponse struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Username  string `json:"username,omitempty"`
}

// UserInfo holds the claims released by the userinfo endpoint.
type UserInfo struct {
	Sub               string `json:"sub"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
	Picture           string `json:"picture,omitempty"`
	Email             string `json:"email,omitempty"`
	EmailVerified     *bool  `json:"email_verified,omitempty"`
}

// ServerMetadata is the RFC 8414 authorization server metadata document.
type ServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	IntrospectionEndpoint             string   `json:"introspection_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JwksURI                           string   `json:"jwks_uri"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported,omitempty"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported,omitempty"`
	ClaimsSupported                   []string `json:"claims_supported,omitempty"`
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
