package handlers

import (
	"net/http"

	"authorization-server/internal/oauth"

	"go.uber.org/zap"
)

// IntrospectionHandler serves token introspection (RFC 7662) and
// revocation (RFC 7009).
type IntrospectionHandler struct {
	svc    *oauth.IntrospectionService
	logger *zap.Logger
}

func NewIntrospectionHandler(svc *oauth.IntrospectionService, logger *zap.Logger) *IntrospectionHandler {
	return &IntrospectionHandler{svc: svc, logger: logger}
}

// tokenForm parses the shared token/token_type_hint form and the caller's
// credentials.
func tokenForm(r *http.Request) (string, oauth.TokenHint, oauth.ClientCredentials, error) {
	if err := parseForm(r); err != nil {
		return "", "", oauth.ClientCredentials{}, err
	}
	creds, err := clientCredentials(r)
	if err != nil {
		return "", "", creds, err
	}
	return r.PostForm.Get("token"), oauth.TokenHint(r.PostForm.Get("token_type_hint")), creds, nil
}

// HandleIntrospect handles POST /oauth/introspect
// @Summary     Introspect a token
// @Description Reports whether an access or refresh token is active. Requires client authentication.
// @Tags        oauth2
// @Accept      application/x-www-form-urlencoded
// @Produce     application/json
// @Param       token           formData string true  "Token to introspect"
// @Param       token_type_hint formData string false "access_token or refresh_token"
// @Success     200  {object}  models.IntrospectionResponse
// @Failure     401  {object}  models.ErrorResponse
// @Router      /oauth/introspect [post]
func (h *IntrospectionHandler) HandleIntrospect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	token, hint, creds, err := tokenForm(r)
	if err != nil {
		sendError(w, err, creds)
		return
	}

	resp, err := h.svc.Introspect(r.Context(), creds, token, hint)
	if err != nil {
		sendError(w, err, creds)
		return
	}
	noStore(w)
	sendJSON(w, http.StatusOK, resp)
}

// HandleRevoke handles POST /oauth/revoke
// @Summary     Revoke a token
// @Description Revokes an access or refresh token. Unknown tokens are not an error.
// @Tags        oauth2
// @Accept      application/x-www-form-urlencoded
// @Param       token           formData string true  "Token to revoke"
// @Param       token_type_hint formData string false "access_token or refresh_token"
// @Success     200
// @Failure     401  {object}  models.ErrorResponse
// @Router      /oauth/revoke [post]
func (h *IntrospectionHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	token, hint, creds, err := tokenForm(r)
	if err != nil {
		sendError(w, err, creds)
		return
	}

	if err := h.svc.Revoke(r.Context(), creds, token, hint); err != nil {
		sendError(w, err, creds)
		return
	}
	noStore(w)
	w.WriteHeader(http.StatusOK)
}
