package handlers

import (
	"net/http"

	"authorization-server/internal/middleware"
	"authorization-server/internal/oauth"
	oautherrors "authorization-server/pkg/errors"

	"go.uber.org/zap"
)

// UserInfoHandler serves the OpenID Connect userinfo endpoint. It expects
// to sit behind middleware.BearerAuth.
type UserInfoHandler struct {
	resolver *oauth.UserInfoResolver
	logger   *zap.Logger
}

func NewUserInfoHandler(resolver *oauth.UserInfoResolver, logger *zap.Logger) *UserInfoHandler {
	return &UserInfoHandler{resolver: resolver, logger: logger}
}

// HandleUserInfo handles GET/POST /oauth/userinfo
// @Summary     User claims
// @Description Returns claims about the user the bearer token was issued for, filtered by its scope.
// @Tags        oidc
// @Produce     application/json
// @Security    BearerAuth
// @Success     200  {object}  models.UserInfo
// @Failure     401  {object}  models.ErrorResponse
// @Failure     403  {object}  models.ErrorResponse
// @Router      /oauth/userinfo [get]
func (h *UserInfoHandler) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Vary", "Authorization")

	tok, ok := middleware.TokenFromContext(r.Context())
	if !ok {
		sendError(w, oautherrors.InvalidToken("Missing bearer token"), oauth.ClientCredentials{})
		return
	}

	info, err := h.resolver.Resolve(r.Context(), tok)
	if err != nil {
		sendError(w, err, oauth.ClientCredentials{})
		return
	}
	noStore(w)
	sendJSON(w, http.StatusOK, info)
}
