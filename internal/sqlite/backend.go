// Package sqlite implements the durable key/value store on SQLite.
//
// The store keeps one row per key in a single table. It holds the local cart
// snapshot, the guest session identifier, and the bearer token, and it
// survives process restarts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// DBFileName is the database file created inside Config.DataDir.
const DBFileName = "cart.db"

var _ types.KVStore = (*Backend)(nil)

// Backend implements types.KVStore using SQLite.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach initializes the backend with the given configuration.
// Creates DataDir if it does not exist and initializes the schema.
// Existing data is kept. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}

	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps writes ordered and avoids SQLITE_BUSY between
	// pooled connections of the same process.
	db.SetMaxOpenConns(1)

	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.attached = true
	return nil
}

// Detach closes the SQLite connection. After Detach, all operations return
// ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	return nil
}

// Get returns the value stored under key.
// Returns ErrNotFound if the key has never been set or was removed.
func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return "", types.ErrStoreDetached
	}
	if key == "" {
		return "", types.ErrInvalidKey
	}

	var value string
	err := b.db.QueryRowContext(ctx, selectValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (b *Backend) Set(ctx context.Context, key, value string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrStoreDetached
	}
	if key == "" {
		return types.ErrInvalidKey
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := b.db.ExecContext(ctx, upsertValue, key, value, now); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key succeeds.
func (b *Backend) Remove(ctx context.Context, key string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return types.ErrStoreDetached
	}
	if key == "" {
		return types.ErrInvalidKey
	}

	if _, err := b.db.ExecContext(ctx, deleteValue, key); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}
