// Package appdir resolves the on-disk layout under ~/.deskd.
package appdir

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.deskd.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".deskd")
}

// DBPath returns the message cache database path.
func DBPath(base string) string {
	return filepath.Join(base, "cache.db")
}

// LogDir returns the log directory.
func LogDir(base string) string {
	return filepath.Join(base, "logs")
}

// LogPath returns the daemon log file path.
func LogPath(base string) string {
	return filepath.Join(LogDir(base), "deskd.log")
}

// ConfigPath returns the config file path.
func ConfigPath(base string) string {
	return filepath.Join(base, "config.toml")
}

// EnsureDirs creates the data directory tree with proper permissions.
func EnsureDirs(base string) error {
	for _, d := range []string{base, LogDir(base)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
