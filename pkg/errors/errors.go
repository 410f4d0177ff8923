package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is an RFC 6749 error code.
type Kind string

// Error kinds returned by the authorization server.
const (
	KindInvalidRequest          Kind = "invalid_request"
	KindInvalidClient           Kind = "invalid_client"
	KindInvalidGrant            Kind = "invalid_grant"
	KindUnauthorizedClient      Kind = "unauthorized_client"
	KindUnsupportedGrantType    Kind = "unsupported_grant_type"
	KindUnsupportedResponseType Kind = "unsupported_response_type"
	KindInvalidScope            Kind = "invalid_scope"
	KindAccessDenied            Kind = "access_denied"
	KindServerError             Kind = "server_error"

	// KindInvalidToken is only produced by the bearer guard (RFC 6750).
	KindInvalidToken Kind = "invalid_token"
)

// Kinds lists every kind the server can emit.
var Kinds = []Kind{
	KindInvalidRequest,
	KindInvalidClient,
	KindInvalidGrant,
	KindUnauthorizedClient,
	KindUnsupportedGrantType,
	KindUnsupportedResponseType,
	KindInvalidScope,
	KindAccessDenied,
	KindServerError,
	KindInvalidToken,
}

// Status returns the HTTP status used when the kind is rendered as JSON.
func (k Kind) Status() int {
	switch k {
	case KindInvalidClient, KindInvalidToken:
		return http.StatusUnauthorized
	case KindAccessDenied:
		return http.StatusForbidden
	case KindServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// OAuthError is the single error type that crosses the oauth package
// boundary. Err holds the internal cause and is never rendered.
type OAuthError struct {
	Kind        Kind
	Description string
	Status      int
	Err         error
}

func (e *OAuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *OAuthError) Unwrap() error {
	return e.Err
}

// Is matches another *OAuthError of the same kind.
func (e *OAuthError) Is(target error) bool {
	t, ok := target.(*OAuthError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, description string) *OAuthError {
	return &OAuthError{
		Kind:        kind,
		Description: description,
		Status:      kind.Status(),
	}
}

// Wrap attaches an internal cause to a new error of the given kind.
func Wrap(err error, kind Kind, description string) *OAuthError {
	return &OAuthError{
		Kind:        kind,
		Description: description,
		Status:      kind.Status(),
		Err:         err,
	}
}

// From converts any error into an *OAuthError. Errors that are not already
// OAuth errors become server_error with a generic description.
func From(err error) *OAuthError {
	if err == nil {
		return nil
	}
	var oe *OAuthError
	if stderrors.As(err, &oe) {
		return oe
	}
	return Wrap(err, KindServerError, "The authorization server encountered an unexpected condition")
}

// KindOf returns the kind of err, or server_error.
func KindOf(err error) Kind {
	return From(err).Kind
}

func InvalidRequest(desc string) *OAuthError {
	return New(KindInvalidRequest, desc)
}

func InvalidClient(desc string) *OAuthError {
	return New(KindInvalidClient, desc)
}

func InvalidGrant(desc string) *OAuthError {
	return New(KindInvalidGrant, desc)
}

func UnauthorizedClient(desc string) *OAuthError {
	return New(KindUnauthorizedClient, desc)
}

func UnsupportedGrantType(desc string) *OAuthError {
	return New(KindUnsupportedGrantType, desc)
}

func UnsupportedResponseType(desc string) *OAuthError {
	return New(KindUnsupportedResponseType, desc)
}

func InvalidScope(desc string) *OAuthError {
	return New(KindInvalidScope, desc)
}

func AccessDenied(desc string) *OAuthError {
	return New(KindAccessDenied, desc)
}

func InvalidToken(desc string) *OAuthError {
	return New(KindInvalidToken, desc)
}

// ServerError wraps an unexpected failure.
func ServerError(err error) *OAuthError {
	return Wrap(err, KindServerError, "The authorization server encountered an unexpected condition")
}
