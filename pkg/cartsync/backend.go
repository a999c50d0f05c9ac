package cartsync

import (
	"fmt"

	"github.com/mesh-intelligence/cartsync/internal/filestore"
	"github.com/mesh-intelligence/cartsync/internal/sqlite"
	"github.com/mesh-intelligence/cartsync/pkg/types"
)

// NewKVStore creates the durable store for backend. The store is not
// attached; call Attach with a Config to open it.
//
// Example:
//
//	kv, err := cartsync.NewKVStore(types.BackendSQLite)
//	if err != nil {
//	    return err
//	}
//	err = kv.Attach(types.Config{Backend: types.BackendSQLite, DataDir: dir})
//	defer kv.Detach()
func NewKVStore(backend string) (types.KVStore, error) {
	switch backend {
	case types.BackendSQLite:
		return sqlite.NewBackend(), nil
	case types.BackendJSONL:
		return filestore.NewStore(), nil
	case "":
		return nil, types.ErrBackendEmpty
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrBackendUnknown, backend)
	}
}
