package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cartsync/internal/testutil"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

func TestTokenStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemKV()
	ts := NewTokenStore(kv)

	token, err := ts.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, ts.SetToken(ctx, "  abc  "))
	token, err = ts.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	require.NoError(t, ts.ClearToken(ctx))
	token, err = ts.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestTokenStoreRejectsBlank(t *testing.T) {
	err := NewTokenStore(testutil.NewMemKV()).SetToken(context.Background(), " ")
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestTokenStoreReadError(t *testing.T) {
	kv := testutil.NewMemKV()
	kv.SetFailures(true, false, false)

	_, err := NewTokenStore(kv).Token(context.Background())
	assert.ErrorIs(t, err, testutil.ErrInjected)
}

func TestResolverWithTokenStore(t *testing.T) {
	ctx := context.Background()
	kv := testutil.NewMemKV()
	ts := NewTokenStore(kv)
	r := NewResolver(kv, ts)

	guest := r.ResolveHeaders(ctx, false)
	assert.NotEmpty(t, guest.Get(types.HeaderSessionID))

	require.NoError(t, ts.SetToken(ctx, "tok"))
	authed := r.ResolveHeaders(ctx, false)
	assert.Equal(t, "Bearer tok", authed.Get(types.HeaderAuthorization))
	assert.Empty(t, authed.Get(types.HeaderSessionID))
}
