package types

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds durable store selection and parameters for KVStore.Attach.
type Config struct {
	Backend string `json:"backend" yaml:"backend"`
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
	BackendJSONL  = "jsonl"
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrDataDirEmpty   = errors.New("data dir must not be empty")
)

// Backends lists the backend names Validate accepts.
func Backends() []string {
	return []string{BackendSQLite, BackendJSONL}
}

// Validate checks that the Config names a known backend and a place to keep
// its files. Errors wrap the sentinels above.
func (c Config) Validate() error {
	switch c.Backend {
	case "":
		return ErrBackendEmpty
	case BackendSQLite, BackendJSONL:
	default:
		return fmt.Errorf("%w %q (want one of %s)", ErrBackendUnknown, c.Backend, strings.Join(Backends(), ", "))
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return ErrDataDirEmpty
	}
	return nil
}
