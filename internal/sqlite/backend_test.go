// Tests for the SQLite key/value backend.
package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/cartsync/pkg/types"
)

func attachTemp(t *testing.T, dir string) *Backend {
	t.Helper()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	t.Cleanup(func() { b.Detach() })
	return b
}

func TestBackend_Attach(t *testing.T) {
	tmpDir := t.TempDir()

	b := NewBackend()
	config := types.Config{
		Backend: types.BackendSQLite,
		DataDir: tmpDir,
	}

	err := b.Attach(config)
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	// Verify database file created
	dbPath := filepath.Join(tmpDir, DBFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("%s not created", DBFileName)
	}

	// Verify double attach fails
	err = b.Attach(config)
	if err != types.ErrAlreadyAttached {
		t.Errorf("expected ErrAlreadyAttached, got %v", err)
	}

	b.Detach()
}

func TestBackend_AttachRejectsInvalidConfig(t *testing.T) {
	b := NewBackend()
	err := b.Attach(types.Config{Backend: "", DataDir: t.TempDir()})
	assert.ErrorIs(t, err, types.ErrBackendEmpty)
}

func TestBackend_Detach(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))

	require.NoError(t, b.Detach())
	// Idempotent
	require.NoError(t, b.Detach())

	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, types.ErrStoreDetached)
	assert.ErrorIs(t, b.Set(ctx, "k", "v"), types.ErrStoreDetached)
	assert.ErrorIs(t, b.Remove(ctx, "k"), types.ErrStoreDetached)
}

func TestBackend_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	b := attachTemp(t, t.TempDir())

	_, err := b.Get(ctx, types.KeyCartSnapshot)
	assert.ErrorIs(t, err, types.ErrNotFound)

	require.NoError(t, b.Set(ctx, types.KeyCartSnapshot, `[{"id":"p1"}]`))
	v, err := b.Get(ctx, types.KeyCartSnapshot)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"p1"}]`, v)

	require.NoError(t, b.Set(ctx, types.KeyCartSnapshot, `[]`))
	v, err = b.Get(ctx, types.KeyCartSnapshot)
	require.NoError(t, err)
	assert.Equal(t, `[]`, v)

	require.NoError(t, b.Remove(ctx, types.KeyCartSnapshot))
	_, err = b.Get(ctx, types.KeyCartSnapshot)
	assert.ErrorIs(t, err, types.ErrNotFound)

	// Removing a missing key is fine.
	require.NoError(t, b.Remove(ctx, types.KeyCartSnapshot))
}

func TestBackend_EmptyKey(t *testing.T) {
	ctx := context.Background()
	b := attachTemp(t, t.TempDir())

	_, err := b.Get(ctx, "")
	assert.ErrorIs(t, err, types.ErrInvalidKey)
	assert.ErrorIs(t, b.Set(ctx, "", "v"), types.ErrInvalidKey)
	assert.ErrorIs(t, b.Remove(ctx, ""), types.ErrInvalidKey)
}

func TestBackend_SurvivesReattach(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := NewBackend()
	require.NoError(t, first.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir}))
	require.NoError(t, first.Set(ctx, types.KeyGuestSession, "guest-1"))
	require.NoError(t, first.Detach())

	second := attachTemp(t, dir)
	v, err := second.Get(ctx, types.KeyGuestSession)
	require.NoError(t, err)
	assert.Equal(t, "guest-1", v)
}

func TestBackend_CreatesNestedDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	attachTemp(t, dir)

	_, err := os.Stat(filepath.Join(dir, DBFileName))
	assert.NoError(t, err)
}
