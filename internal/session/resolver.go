// Package session resolves the identity attached to outgoing cart requests:
// the signed-in shopper's bearer token when there is one, otherwise a guest
// session identifier generated once per installation.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// GuestPrefix starts every generated guest session identifier.
const GuestPrefix = "guest-"

var _ types.HeaderResolver = (*Resolver)(nil)

// Resolver implements types.HeaderResolver.
type Resolver struct {
	kv     types.KVStore
	creds  types.CredentialProvider
	logger *slog.Logger
	newID  func() string

	mu      sync.Mutex
	guestID string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for swallowed storage and credential errors.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithIDGenerator overrides guest identifier generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Resolver) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// NewResolver creates a Resolver that persists the guest identifier in kv and
// asks creds for the bearer token. creds may be nil for guest-only use.
func NewResolver(kv types.KVStore, creds types.CredentialProvider, opts ...Option) *Resolver {
	r := &Resolver{
		kv:     kv,
		creds:  creds,
		logger: slog.Default(),
		newID:  NewGuestID,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "session")
	return r
}

// NewGuestID returns a time-ordered UUID v7 with the guest prefix.
func NewGuestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to UUID v4 if v7 generation fails
		return GuestPrefix + uuid.New().String()
	}
	return GuestPrefix + id.String()
}

// ResolveHeaders returns the identity headers for one request. A bearer token
// takes precedence; exactly one of Authorization and x-session-id is set.
func (r *Resolver) ResolveHeaders(ctx context.Context, requiresBody bool) http.Header {
	h := make(http.Header)
	if requiresBody {
		h.Set(types.HeaderContentType, "application/json")
	}
	if token := r.token(ctx); token != "" {
		h.Set(types.HeaderAuthorization, "Bearer "+token)
		return h
	}
	h.Set(types.HeaderSessionID, r.GuestID(ctx))
	return h
}

func (r *Resolver) token(ctx context.Context) string {
	if r.creds == nil {
		return ""
	}
	token, err := r.creds.Token(ctx)
	if err != nil {
		r.logger.Warn("credential lookup failed, continuing as guest", "error", err)
		return ""
	}
	return strings.TrimSpace(token)
}

// GuestID returns the installation's guest identifier, generating and
// persisting it on first use. Storage failures are logged and swallowed: the
// generated identifier is still used for the rest of the process lifetime.
// An identifier is only persisted when the store confirmed none exists, so a
// failed read never replaces the stored one.
func (r *Resolver) GuestID(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.guestID != "" {
		return r.guestID
	}

	persist := false
	if r.kv != nil {
		stored, err := r.kv.Get(ctx, types.KeyGuestSession)
		switch {
		case err == nil && strings.TrimSpace(stored) != "":
			r.guestID = strings.TrimSpace(stored)
			return r.guestID
		case err == nil, errors.Is(err, types.ErrNotFound):
			persist = true
		default:
			r.logger.Warn("reading guest session id failed, using a temporary id", "error", err)
		}
	}

	r.guestID = r.newID()
	if persist {
		if err := r.kv.Set(ctx, types.KeyGuestSession, r.guestID); err != nil {
			r.logger.Warn("persisting guest session id failed", "error", err)
		}
	}
	r.logger.Debug("guest session created", "session_id", r.guestID)
	return r.guestID
}
