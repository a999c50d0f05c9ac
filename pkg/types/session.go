package types

import (
	"context"
	"net/http"
)

// Header names attached to outgoing cart requests.
const (
	HeaderAuthorization = "Authorization"
	HeaderSessionID     = "x-session-id"
	HeaderContentType   = "Content-Type"
)

// CredentialProvider reports the bearer credential of the signed-in shopper.
// An empty token means the shopper is a guest.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// HeaderResolver decides which session identity headers an outgoing request
// carries. requiresBody adds a JSON content type.
type HeaderResolver interface {
	ResolveHeaders(ctx context.Context, requiresBody bool) http.Header
}
