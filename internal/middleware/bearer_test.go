package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"authorization-server/internal/middleware"
	"authorization-server/internal/models"
	oautherrors "authorization-server/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeResolver map[string]*models.Token

func (f fakeResolver) ResolveAccessToken(_ context.Context, raw string) (*models.Token, error) {
	if tok, ok := f[raw]; ok {
		return tok, nil
	}
	return nil, oautherrors.InvalidToken("The access token is invalid or has expired")
}

func TestBearerAuth(t *testing.T) {
	resolver := fakeResolver{
		"good":    {ID: "t1", UserID: "alice", Scope: "openid profile"},
		"no-oidc": {ID: "t2", UserID: "alice", Scope: "read:files"},
	}

	var got *models.Token
	handler := middleware.BearerAuth(resolver, zap.NewNop(), models.ScopeOpenID)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, ok := middleware.TokenFromContext(r.Context())
		require.True(t, ok)
		got = tok
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		req        func() *http.Request
		wantStatus int
		wantHeader string
		wantError  string
	}{
		{
			name: "header token",
			req: func() *http.Request {
				r := httptest.NewRequest("GET", "/oauth/userinfo", nil)
				r.Header.Set("Authorization", "Bearer good")
				return r
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "scheme is case-insensitive",
			req: func() *http.Request {
				r := httptest.NewRequest("GET", "/oauth/userinfo", nil)
				r.Header.Set("Authorization", "bearer good")
				return r
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "form token",
			req: func() *http.Request {
				r := httptest.NewRequest("POST", "/oauth/userinfo", strings.NewReader(url.Values{"access_token": {"good"}}.Encode()))
				r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				return r
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing token",
			req:        func() *http.Request { return httptest.NewRequest("GET", "/oauth/userinfo", nil) },
			wantStatus: http.StatusUnauthorized,
			wantHeader: `Bearer realm="oauth"`,
			wantError:  "invalid_token",
		},
		{
			name: "unknown token",
			req: func() *http.Request {
				r := httptest.NewRequest("GET", "/oauth/userinfo", nil)
				r.Header.Set("Authorization", "Bearer nope")
				return r
			},
			wantStatus: http.StatusUnauthorized,
			wantHeader: `Bearer error="invalid_token"`,
			wantError:  "invalid_token",
		},
		{
			name: "basic scheme",
			req: func() *http.Request {
				r := httptest.NewRequest("GET", "/oauth/userinfo", nil)
				r.SetBasicAuth("a", "b")
				return r
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_token",
		},
		{
			name: "missing scope",
			req: func() *http.Request {
				r := httptest.NewRequest("GET", "/oauth/userinfo", nil)
				r.Header.Set("Authorization", "Bearer no-oidc")
				return r
			},
			wantStatus: http.StatusForbidden,
			wantHeader: `Bearer error="insufficient_scope"`,
			wantError:  "access_denied",
		},
		{
			name: "token in header and body",
			req: func() *http.Request {
				r := httptest.NewRequest("POST", "/oauth/userinfo", strings.NewReader(url.Values{"access_token": {"good"}}.Encode()))
				r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
				r.Header.Set("Authorization", "Bearer good")
				return r
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, tt.req())

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusOK {
				require.NotNil(t, got)
				assert.Equal(t, "t1", got.ID)
				return
			}
			assert.Nil(t, got)
			assert.Contains(t, rr.Body.String(), `"error":"`+tt.wantError+`"`)
			assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
			if tt.wantHeader != "" {
				assert.True(t, strings.HasPrefix(rr.Header().Get("WWW-Authenticate"), tt.wantHeader), rr.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
