package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/cartsync/pkg/types"
)

var _ types.CredentialProvider = (*TokenStore)(nil)

// TokenStore keeps the bearer token in durable storage.
type TokenStore struct {
	kv types.KVStore
}

// NewTokenStore creates a TokenStore backed by kv.
func NewTokenStore(kv types.KVStore) *TokenStore {
	return &TokenStore{kv: kv}
}

// Token returns the stored bearer token, or "" when signed out.
func (s *TokenStore) Token(ctx context.Context) (string, error) {
	token, err := s.kv.Get(ctx, types.KeyAuthToken)
	if errors.Is(err, types.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

// SetToken stores token, replacing any previous one.
func (s *TokenStore) SetToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("set token: %w", ErrEmptyToken)
	}
	return s.kv.Set(ctx, types.KeyAuthToken, token)
}

// ClearToken signs the shopper out.
func (s *TokenStore) ClearToken(ctx context.Context) error {
	return s.kv.Remove(ctx, types.KeyAuthToken)
}

// ErrEmptyToken is returned when SetToken receives a blank token.
var ErrEmptyToken = errors.New("token must not be empty")
