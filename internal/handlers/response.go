package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"authorization-server/internal/models"
	"authorization-server/internal/oauth"
	oautherrors "authorization-server/pkg/errors"
)

func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// noStore marks a response as carrying credentials (RFC 6749 §5.1).
func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// sendError writes the RFC 6749 §5.2 error body. A 401 for a client that
// tried Basic authentication carries a matching challenge.
func sendError(w http.ResponseWriter, err error, creds oauth.ClientCredentials) {
	oe := oautherrors.From(err)
	if oe.Status == http.StatusUnauthorized && creds.Method == oauth.AuthMethodBasic {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	noStore(w)
	sendJSON(w, oe.Status, models.ErrorResponse{
		Error:            string(oe.Kind),
		ErrorDescription: oe.Description,
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	sendJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{
		Error:            string(oautherrors.KindInvalidRequest),
		ErrorDescription: "Method not allowed",
	})
}

// parseForm parses a form-encoded POST body. Parameters repeated within the
// body are rejected (RFC 6749 §3.1).
func parseForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return oautherrors.InvalidRequest("Malformed request body")
	}
	for k, vs := range r.PostForm {
		if len(vs) > 1 {
			return oautherrors.InvalidRequest("Parameter " + k + " included more than once")
		}
	}
	return nil
}

// clientCredentials reads client authentication from the Authorization
// header or the body. Using both is an error.
func clientCredentials(r *http.Request) (oauth.ClientCredentials, error) {
	bodyID := r.PostForm.Get("client_id")
	bodySecret := r.PostForm.Get("client_secret")

	if h := r.Header.Get("Authorization"); h != "" && strings.HasPrefix(strings.ToLower(h), "basic ") {
		id, secret, ok := r.BasicAuth()
		if !ok {
			return oauth.ClientCredentials{Method: oauth.AuthMethodBasic}, oautherrors.InvalidClient("Malformed Basic credentials")
		}
		// Basic credentials are form-encoded before base64 (RFC 6749 §2.3.1).
		if v, err := url.QueryUnescape(id); err == nil {
			id = v
		}
		if v, err := url.QueryUnescape(secret); err == nil {
			secret = v
		}
		creds := oauth.ClientCredentials{ClientID: id, ClientSecret: secret, Method: oauth.AuthMethodBasic}
		if bodySecret != "" {
			return creds, oautherrors.InvalidRequest("Client authenticated by more than one method")
		}
		if bodyID != "" && bodyID != id {
			return creds, oautherrors.InvalidRequest("client_id does not match the Authorization header")
		}
		return creds, nil
	}

	if bodySecret != "" {
		return oauth.ClientCredentials{ClientID: bodyID, ClientSecret: bodySecret, Method: oauth.AuthMethodPost}, nil
	}
	return oauth.ClientCredentials{ClientID: bodyID, Method: oauth.AuthMethodNone}, nil
}
