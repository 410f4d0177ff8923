package handlers

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"authorization-server/internal/models"
	"authorization-server/internal/oauth"
	oautherrors "authorization-server/pkg/errors"

	"go.uber.org/zap"
)

// Authenticator identifies the resource owner behind an authorize request.
// Login itself happens elsewhere.
type Authenticator interface {
	CurrentUser(r *http.Request) (userID string, ok bool)
}

// HeaderAuthenticator trusts a user id header set by an upstream login
// proxy. The proxy must strip the header from client requests.
type HeaderAuthenticator struct {
	Header string
}

func (a HeaderAuthenticator) CurrentUser(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(a.Header))
	return id, id != ""
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorize {{.ClientName}}</title></head>
<body>
<h1>{{.ClientName}} wants to access your account</h1>
{{if .Scopes}}<p>Requested permissions:</p>
<ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>{{end}}
<form method="post" action="{{.Action}}">
<input type="hidden" name="consent_token" value="{{.ConsentToken}}">
{{range $k, $v := .Params}}<input type="hidden" name="{{$k}}" value="{{$v}}">
{{end}}<button type="submit" name="confirm" value="yes">Allow</button>
<button type="submit" name="confirm" value="no">Deny</button>
</form>
</body>
</html>
`))

var errorTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>Authorization error</title></head>
<body>
<h1>{{.Error}}</h1>
<p>{{.ErrorDescription}}</p>
</body>
</html>
`))

type consentPage struct {
	ClientName   string
	Scopes       []string
	Action       string
	ConsentToken string
	Params       map[string]string
}

// AuthorizeHandler runs the authorization endpoint: validation, login
// hand-off, consent and the redirect back to the client.
type AuthorizeHandler struct {
	grants   *oauth.GrantProcessor
	authn    Authenticator
	consent  *consentSigner
	loginURL string
	logger   *zap.Logger
}

// NewAuthorizeHandler creates the handler. Without a loginURL,
// unauthenticated users get a 401 page instead of a redirect. consentKey
// signs consent forms; when empty a random per-process key is used.
func NewAuthorizeHandler(grants *oauth.GrantProcessor, authn Authenticator, loginURL string, consentKey []byte, logger *zap.Logger) (*AuthorizeHandler, error) {
	consent, err := newConsentSigner(consentKey)
	if err != nil {
		return nil, err
	}
	return &AuthorizeHandler{
		grants:   grants,
		authn:    authn,
		consent:  consent,
		loginURL: loginURL,
		logger:   logger,
	}, nil
}

// HandleAuthorize handles GET/POST /oauth/authorize
// @Summary     Authorization endpoint
// @Description GET validates the request and shows the consent page. POST with confirm=yes issues a code and redirects to the client; any other confirm value denies.
// @Tags        oauth2
// @Produce     text/html
// @Param       response_type          query string true  "Must be code"
// @Param       client_id              query string true  "Client ID"
// @Param       redirect_uri           query string false "Registered redirect URI"
// @Param       scope                  query string false "Space-separated scopes"
// @Param       state                  query string false "Opaque client state"
// @Param       nonce                  query string false "OpenID Connect nonce"
// @Param       code_challenge         query string false "PKCE challenge"
// @Param       code_challenge_method  query string false "S256 or plain"
// @Success     200  {string}  string  "Consent page"
// @Success     302  {string}  string  "Redirect to the client"
// @Failure     400  {string}  string  "Error page"
// @Router      /oauth/authorize [get]
func (h *AuthorizeHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	params, err := authorizeParams(r)
	if err != nil {
		h.renderError(w, err)
		return
	}
	req := oauth.AuthorizeRequest{
		ClientID:            params.Get("client_id"),
		RedirectURI:         params.Get("redirect_uri"),
		ResponseType:        params.Get("response_type"),
		Scope:               params.Get("scope"),
		State:               params.Get("state"),
		Nonce:               params.Get("nonce"),
		CodeChallenge:       params.Get("code_challenge"),
		CodeChallengeMethod: params.Get("code_challenge_method"),
	}

	ctx := r.Context()
	grant, err := h.grants.ValidateAuthorize(ctx, req)
	if err != nil {
		if grant == nil {
			h.logger.Info("Authorize request rejected",
				zap.String("client_id", req.ClientID),
				zap.String("error", string(oautherrors.KindOf(err))))
			h.renderError(w, err)
			return
		}
		http.Redirect(w, r, h.grants.ErrorRedirect(grant, err), http.StatusFound)
		return
	}

	userID, ok := h.authn.CurrentUser(r)
	if !ok {
		h.requireLogin(w, r, params)
		return
	}

	if r.Method == http.MethodGet {
		h.renderConsent(w, r, grant, userID, params)
		return
	}

	if !h.consent.Verify(r.PostForm.Get("consent_token"), userID, grant) {
		h.logger.Warn("Consent submission without a valid consent token",
			zap.String("client_id", grant.Client.ID),
			zap.String("user_id", userID),
			zap.String("origin", r.Header.Get("Origin")))
		h.renderError(w, &oautherrors.OAuthError{
			Kind:        oautherrors.KindAccessDenied,
			Description: "The consent form is invalid or has expired",
			Status:      http.StatusForbidden,
		})
		return
	}

	if r.PostForm.Get("confirm") != "yes" {
		h.logger.Info("Authorization denied by user", zap.String("client_id", grant.Client.ID), zap.String("user_id", userID))
		http.Redirect(w, r, h.grants.Deny(grant), http.StatusFound)
		return
	}

	location, err := h.grants.Approve(ctx, grant, userID)
	if err != nil {
		http.Redirect(w, r, h.grants.ErrorRedirect(grant, err), http.StatusFound)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

var authorizeKeys = []string{
	"client_id",
	"redirect_uri",
	"response_type",
	"scope",
	"state",
	"nonce",
	"code_challenge",
	"code_challenge_method",
}

// authorizeParams reads the authorize parameters from the query (GET) or
// the body (POST). A parameter sent more than once is invalid_request.
func authorizeParams(r *http.Request) (url.Values, error) {
	src := r.URL.Query()
	if r.Method == http.MethodPost {
		if err := parseForm(r); err != nil {
			return nil, err
		}
		src = r.PostForm
	}

	params := url.Values{}
	for _, k := range authorizeKeys {
		vs := src[k]
		if len(vs) > 1 {
			return nil, oautherrors.InvalidRequest("Parameter " + k + " included more than once")
		}
		if len(vs) == 1 && vs[0] != "" {
			params.Set(k, vs[0])
		}
	}
	return params, nil
}

func (h *AuthorizeHandler) requireLogin(w http.ResponseWriter, r *http.Request, params url.Values) {
	if h.loginURL == "" {
		h.renderError(w, &oautherrors.OAuthError{
			Kind:        oautherrors.KindAccessDenied,
			Description: "Login required",
			Status:      http.StatusUnauthorized,
		})
		return
	}

	login, err := url.Parse(h.loginURL)
	if err != nil {
		h.logger.Error("Invalid login URL", zap.String("login_url", h.loginURL), zap.Error(err))
		h.renderError(w, oautherrors.ServerError(err))
		return
	}
	q := login.Query()
	q.Set("return_to", r.URL.Path+"?"+params.Encode())
	login.RawQuery = q.Encode()
	http.Redirect(w, r, login.String(), http.StatusFound)
}

func (h *AuthorizeHandler) renderConsent(w http.ResponseWriter, r *http.Request, grant *oauth.AuthorizeGrant, userID string, params url.Values) {
	name := grant.Client.Name
	if name == "" {
		name = grant.Client.ID
	}
	hidden := make(map[string]string, len(params))
	for k := range params {
		hidden[k] = params.Get(k)
	}

	page := consentPage{
		ClientName:   name,
		Scopes:       oauth.ParseScope(grant.Scope),
		Action:       r.URL.Path,
		ConsentToken: h.consent.Sign(userID, grant),
		Params:       hidden,
	}
	h.render(w, consentTemplate, http.StatusOK, page)
}

func (h *AuthorizeHandler) renderError(w http.ResponseWriter, err error) {
	oe := oautherrors.From(err)
	h.render(w, errorTemplate, oe.Status, models.ErrorResponse{
		Error:            string(oe.Kind),
		ErrorDescription: oe.Description,
	})
}

func (h *AuthorizeHandler) render(w http.ResponseWriter, tpl *template.Template, status int, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	if err := tpl.Execute(w, data); err != nil {
		h.logger.Error("Failed to render page", zap.String("template", tpl.Name()), zap.Error(err))
	}
}
