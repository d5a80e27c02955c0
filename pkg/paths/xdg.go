// Package paths provides XDG-compliant path resolution for pharmastock.
//
// Resolution order:
// 1. PHARMASTOCK_HOME (portable root) → $PHARMASTOCK_HOME/{config,state,cache}
// 2. XDG env vars → $XDG_*_HOME/pharmastock
// 3. Platform defaults → ~/.config/pharmastock, ~/.local/state/pharmastock, etc.
package paths

import (
	"os"
	"path/filepath"
)

const appName = "pharmastock"

func baseDir(sub, xdgVar string, fallback ...string) string {
	if home := os.Getenv("PHARMASTOCK_HOME"); home != "" {
		return filepath.Join(home, sub)
	}
	if dir := os.Getenv(xdgVar); dir != "" {
		return filepath.Join(dir, appName)
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		parts := append([]string{homeDir}, fallback...)
		return filepath.Join(append(parts, appName)...)
	}
	return ""
}

// ConfigDir returns the global configuration directory.
// Used for the user-wide pharmastock.yml.
func ConfigDir() string {
	return baseDir("config", "XDG_CONFIG_HOME", ".config")
}

// StateDir returns the state directory.
// Used for logs and the dev-server pid file.
func StateDir() string {
	return baseDir("state", "XDG_STATE_HOME", ".local", "state")
}

// CacheDir returns the cache directory.
func CacheDir() string {
	return baseDir("cache", "XDG_CACHE_HOME", ".cache")
}

// LogsDir returns the directory client log files are written to.
func LogsDir() string {
	state := StateDir()
	if state == "" {
		return ""
	}
	return filepath.Join(state, "logs")
}

// DevServerPidPath returns the path to the dev-server PID file.
func DevServerPidPath() string {
	return filepath.Join(StateDir(), "dev-server.pid")
}

// EnsureDirs creates all pharmastock directories if they don't exist.
func EnsureDirs() error {
	for _, dir := range []string{ConfigDir(), StateDir(), CacheDir(), LogsDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
