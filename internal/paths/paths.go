// Package paths resolves where the cart CLI keeps its configuration and its
// local cart snapshot.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory name used under the platform locations.
const AppName = "cartsync"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "CART_CONFIG_DIR"
	EnvDataDir   = "CART_DATA_DIR"
)

// platformDir holds platform lookups that tests override.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/cartsync (fallback ~/.config/cartsync)
// macOS:   ~/Library/Application Support/cartsync
// Windows: %APPDATA%/cartsync
func DefaultConfigDir() (string, error) {
	return platformPath("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform data directory.
//
// Linux:   $XDG_DATA_HOME/cartsync (fallback ~/.local/share/cartsync)
// macOS and Windows: same as DefaultConfigDir.
func DefaultDataDir() (string, error) {
	return platformPath("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func platformPath(xdgVar, homeRel string) (string, error) {
	if platformDir.goos == "linux" {
		if xdg := os.Getenv(xdgVar); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, homeRel, AppName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// ResolveConfigDir picks the configuration directory: flag, then
// CART_CONFIG_DIR, then DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks the data directory: flag, then the data_dir config
// value, then CART_DATA_DIR, then DefaultDataDir.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, dir := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	return DefaultDataDir()
}
