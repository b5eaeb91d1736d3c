// Package config provides configuration management for shellsense.
package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// Paths holds the filesystem layout for shellsense state.
type Paths struct {
	// ConfigDir is the directory for configuration files (~/.config/shellsense)
	ConfigDir string

	// DataDir is the directory for data files (~/.local/share/shellsense)
	DataDir string

	// RuntimeDir is the directory for runtime files like the socket and PID file
	RuntimeDir string
}

// DefaultPaths returns the default paths based on the XDG Base Directory spec.
func DefaultPaths() *Paths {
	home := homeDir()

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = filepath.Join(home, ".local", "share")
	}

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = filepath.Join(os.TempDir(), "shellsense-"+strconv.Itoa(os.Getuid()))
	} else {
		runtimeDir = filepath.Join(runtimeDir, "shellsense")
	}

	return &Paths{
		ConfigDir:  filepath.Join(configHome, "shellsense"),
		DataDir:    filepath.Join(dataHome, "shellsense"),
		RuntimeDir: runtimeDir,
	}
}

// ConfigFile returns the path to the main configuration file.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.ConfigDir, "config.yaml")
}

// DatabaseFile returns the path to the SQLite command store.
func (p *Paths) DatabaseFile() string {
	return filepath.Join(p.DataDir, "history.db")
}

// IndexFile returns the path to the serialized vector index.
func (p *Paths) IndexFile() string {
	return filepath.Join(p.DataDir, "vectors.idx")
}

// SocketFile returns the path to the Unix domain socket.
func (p *Paths) SocketFile() string {
	return filepath.Join(p.RuntimeDir, "sensed.sock")
}

// PIDFile returns the path to the daemon PID file.
func (p *Paths) PIDFile() string {
	return filepath.Join(p.RuntimeDir, "sensed.pid")
}

// LockFile returns the path to the daemon lock file.
func (p *Paths) LockFile() string {
	return filepath.Join(p.RuntimeDir, "sensed.lock")
}

// EnsureDirectories creates all necessary directories.
// The runtime directory is created with owner-only permissions because it
// holds the socket.
func (p *Paths) EnsureDirectories() error {
	if err := os.MkdirAll(p.ConfigDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(p.DataDir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(p.RuntimeDir, 0o700)
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}
