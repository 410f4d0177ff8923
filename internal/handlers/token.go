package handlers

import (
	"net/http"

	"authorization-server/internal/oauth"

	"go.uber.org/zap"
)

// TokenHandler handles OAuth2 token requests
type TokenHandler struct {
	grants *oauth.GrantProcessor
	logger *zap.Logger
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(grants *oauth.GrantProcessor, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{
		grants: grants,
		logger: logger,
	}
}

// HandleToken handles POST /oauth/token
// @Summary     Exchange a grant for tokens
// @Description Issues tokens for the authorization_code, refresh_token and client_credentials grants. Clients authenticate with HTTP Basic or client_secret in the body; public clients send only client_id.
// @Tags        oauth2
// @Accept      application/x-www-form-urlencoded
// @Produce     application/json
// @Param       grant_type     formData string false "authorization_code, refresh_token or client_credentials"
// @Param       code           formData string false "Authorization code (authorization_code)"
// @Param       redirect_uri   formData string false "Must repeat the authorize request's redirect_uri"
// @Param       code_verifier  formData string false "PKCE verifier"
// @Param       refresh_token  formData string false "Refresh token (refresh_token)"
// @Param       scope          formData string false "Requested scope"
// @Param       client_id      formData string false "Client ID when not using Basic auth"
// @Param       client_secret  formData string false "Client secret for client_secret_post"
// @Success     200  {object}  models.TokenResponse
// @Failure     400  {object}  models.ErrorResponse
// @Failure     401  {object}  models.ErrorResponse
// @Failure     500  {object}  models.ErrorResponse
// @Router      /oauth/token [post]
func (h *TokenHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if err := parseForm(r); err != nil {
		sendError(w, err, oauth.ClientCredentials{})
		return
	}
	creds, err := clientCredentials(r)
	if err != nil {
		sendError(w, err, creds)
		return
	}

	resp, err := h.grants.Token(r.Context(), oauth.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Credentials:  creds,
		Code:         r.PostForm.Get("code"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		Scope:        r.PostForm.Get("scope"),
	})
	if err != nil {
		sendError(w, err, creds)
		return
	}

	noStore(w)
	sendJSON(w, http.StatusOK, resp)
}
