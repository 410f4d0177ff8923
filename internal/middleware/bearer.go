package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"authorization-server/internal/models"
	oautherrors "authorization-server/pkg/errors"

	"go.uber.org/zap"
)

// TokenResolver resolves a raw bearer token to a live access token.
type TokenResolver interface {
	ResolveAccessToken(ctx context.Context, raw string) (*models.Token, error)
}

type contextKey string

const tokenContextKey contextKey = "access_token"

// TokenFromContext returns the token stored by BearerAuth.
func TokenFromContext(ctx context.Context) (*models.Token, bool) {
	tok, ok := ctx.Value(tokenContextKey).(*models.Token)
	return tok, ok && tok != nil
}

// WithToken stores tok on ctx.
func WithToken(ctx context.Context, tok *models.Token) context.Context {
	return context.WithValue(ctx, tokenContextKey, tok)
}

// BearerAuth requires an RFC 6750 bearer token carrying every scope in
// scopes. The token is read from the Authorization header or, for
// form-encoded POSTs, the access_token body parameter.
func BearerAuth(resolver TokenResolver, logger *zap.Logger, scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				writeBearerError(w, err)
				return
			}
			if raw == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="oauth"`)
				writeBearerError(w, oautherrors.InvalidToken("Missing bearer token"))
				return
			}

			tok, err := resolver.ResolveAccessToken(r.Context(), raw)
			if err != nil {
				if oautherrors.KindOf(err) == oautherrors.KindServerError {
					logger.Error("Failed to resolve bearer token", zap.Error(err))
				}
				writeBearerError(w, err)
				return
			}

			for _, s := range scopes {
				if !tok.HasScope(s) {
					writeBearerError(w, oautherrors.New(oautherrors.KindAccessDenied, fmt.Sprintf("Token lacks the %s scope", s)))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), tok)))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	var header string
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, value, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", oautherrors.InvalidToken("Authorization header must use the Bearer scheme")
		}
		header = strings.TrimSpace(value)
	}

	var form string
	if r.Method == http.MethodPost && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return "", oautherrors.InvalidRequest("Malformed request body")
		}
		form = r.PostForm.Get("access_token")
	}

	if header != "" && form != "" {
		return "", oautherrors.InvalidRequest("Bearer token sent by more than one method")
	}
	if header != "" {
		return header, nil
	}
	return form, nil
}

func writeBearerError(w http.ResponseWriter, err error) {
	oe := oautherrors.From(err)
	if oe.Kind == oautherrors.KindInvalidToken && w.Header().Get("WWW-Authenticate") == "" {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer error="invalid_token", error_description=%q`, oe.Description))
	}
	if oe.Kind == oautherrors.KindAccessDenied {
		w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
	}
	if oe.Kind == oautherrors.KindInvalidRequest {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_request"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(oe.Status)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:            string(oe.Kind),
		ErrorDescription: oe.Description,
	})
}
