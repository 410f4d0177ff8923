package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"authorization-server/internal/auth"
	"authorization-server/internal/cache"
	"authorization-server/internal/database"
	"authorization-server/internal/handlers"
	"authorization-server/internal/middleware"
	"authorization-server/internal/models"
	"authorization-server/internal/oauth"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	userHeader   = "X-Authenticated-User"
	c1Secret     = "c1-secret"
	c1Redirect   = "https://app.test/cb"
	testIssuer   = "https://auth.test"
	testVerifier = "verifier123"

	testConsentKey = "consent-key-for-handler-tests-0123456789"
)

var consentTokenPattern = regexp.MustCompile(`name="consent_token" value="([^"]+)"`)

type testEnv struct {
	srv    *oauth.Server
	repo   *database.MemoryRepository
	router *mux.Router
}

func newTestEnv(t *testing.T, loginURL string) *testEnv {
	t.Helper()
	return newTestEnvWithKey(t, loginURL, testConsentKey)
}

func newTestEnvWithKey(t *testing.T, loginURL, consentKey string) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	keys, err := auth.NewEphemeralKeyManager()
	require.NoError(t, err)

	repo := database.NewMemoryRepository()
	opts := oauth.Options{
		Issuer:          testIssuer,
		SupportedScopes: []string{"openid", "profile", "email"},
		AllowPKCEPlain:  true,
	}
	srv := oauth.NewServer(repo, cache.NewMemoryCache(time.Minute), keys, opts, nil, logger)

	_, _, err = srv.Registry.Register(ctx, oauth.Registration{
		ClientID:     "c1",
		Secret:       c1Secret,
		Name:         "Files App",
		RedirectURIs: []string{c1Redirect},
		Scopes:       []string{"read:files", "openid", "profile", "email"},
		GrantTypes:   []string{models.GrantAuthorizationCode, models.GrantRefreshToken, models.GrantClientCredentials},
		Confidential: true,
	})
	require.NoError(t, err)
	_, _, err = srv.Registry.Register(ctx, oauth.Registration{
		ClientID:     "spa",
		Name:         "SPA",
		RedirectURIs: []string{"https://spa.test/cb"},
		Scopes:       []string{"openid", "profile"},
	})
	require.NoError(t, err)
	require.NoError(t, repo.UpsertUser(ctx, models.User{
		ID:            "alice",
		Username:      "alice",
		FullName:      "Alice Example",
		Email:         "alice@example.com",
		EmailVerified: true,
	}))

	authorize, err := handlers.NewAuthorizeHandler(srv.Grants, handlers.HeaderAuthenticator{Header: userHeader}, loginURL, []byte(consentKey), logger)
	require.NoError(t, err)
	token := handlers.NewTokenHandler(srv.Grants, logger)
	introspection := handlers.NewIntrospectionHandler(srv.Introspection, logger)
	userinfo := handlers.NewUserInfoHandler(srv.UserInfo, logger)
	discovery := handlers.NewDiscoveryHandler(testIssuer, srv.Options, logger)
	jwks := handlers.NewJWKSHandler(keys, logger)

	r := mux.NewRouter()
	r.HandleFunc("/oauth/authorize", authorize.HandleAuthorize).Methods("GET", "POST")
	r.HandleFunc("/oauth/token", token.HandleToken).Methods("POST")
	r.HandleFunc("/oauth/introspect", introspection.HandleIntrospect).Methods("POST")
	r.HandleFunc("/oauth/revoke", introspection.HandleRevoke).Methods("POST")
	r.Handle("/oauth/userinfo", middleware.BearerAuth(srv.Tokens, logger, models.ScopeOpenID)(http.HandlerFunc(userinfo.HandleUserInfo))).Methods("GET", "POST")
	r.HandleFunc("/oauth/jwks", jwks.HandleJWKS).Methods("GET")
	r.HandleFunc("/.well-known/oauth-authorization-server", discovery.HandleMetadata).Methods("GET")
	r.HandleFunc("/.well-known/openid-configuration", discovery.HandleOIDCConfiguration).Methods("GET")

	return &testEnv{srv: srv, repo: repo, router: r}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func s256(verifier string) string {
	return oauth.S256Challenge(verifier)
}

func c1AuthorizeQuery(scope string) url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {"c1"},
		"redirect_uri":          {c1Redirect},
		"scope":                 {scope},
		"state":                 {"xyz"},
		"code_challenge":        {s256(testVerifier)},
		"code_challenge_method": {"S256"},
	}
}

// consentToken renders the consent page for user and returns the token
// embedded in its form.
func (e *testEnv) consentToken(t *testing.T, params url.Values, user string) string {
	t.Helper()
	req := httptest.NewRequest("GET", "/oauth/authorize?"+params.Encode(), nil)
	req.Header.Set(userHeader, user)
	rr := e.do(req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	m := consentTokenPattern.FindStringSubmatch(rr.Body.String())
	require.Len(t, m, 2, "consent page has no consent_token")
	return m[1]
}

// approve renders consent as alice, submits it and returns the redirect
// location.
func (e *testEnv) approve(t *testing.T, params url.Values) *url.URL {
	t.Helper()
	form := url.Values{}
	for k, v := range params {
		form[k] = v
	}
	form.Set("consent_token", e.consentToken(t, params, "alice"))
	form.Set("confirm", "yes")
	req := formRequest("/oauth/authorize", form)
	req.Header.Set(userHeader, "alice")

	rr := e.do(req)
	require.Equal(t, http.StatusFound, rr.Code, rr.Body.String())
	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	return loc
}

func (e *testEnv) exchange(t *testing.T, code string) *httptest.ResponseRecorder {
	t.Helper()
	req := formRequest("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c1Redirect},
		"code_verifier": {testVerifier},
	})
	req.SetBasicAuth("c1", c1Secret)
	return e.do(req)
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
