package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RuntimeDirs holds the daemon's runtime paths:
//
//	{base}/state.db        transition journal
//	{base}/lock/           per-device lock files
//	{base}-sock/           gRPC health socket directory
type RuntimeDirs struct {
	base string
	lock string
	sock string
}

// DefaultRuntimeDirs returns the production layout under /run/pppring.
func DefaultRuntimeDirs() RuntimeDirs {
	dirs, err := NewRuntimeDirs("/run/pppring")
	if err != nil {
		panic(fmt.Sprintf("DefaultRuntimeDirs: %v", err))
	}
	return dirs
}

// NewRuntimeDirs derives all paths from base, which must be absolute.
func NewRuntimeDirs(base string) (RuntimeDirs, error) {
	if base == "" {
		return RuntimeDirs{}, fmt.Errorf("base path cannot be empty")
	}
	if !filepath.IsAbs(base) {
		return RuntimeDirs{}, fmt.Errorf("base path must be absolute, got %q", base)
	}
	base = filepath.Clean(base)
	return RuntimeDirs{
		base: base,
		lock: filepath.Join(base, "lock"),
		sock: base + "-sock",
	}, nil
}

// Base returns the runtime root.
func (d RuntimeDirs) Base() string { return d.base }

// DBPath returns the SQLite journal path.
func (d RuntimeDirs) DBPath() string { return filepath.Join(d.base, "state.db") }

// SocketPath returns the gRPC health socket path.
func (d RuntimeDirs) SocketPath() string { return filepath.Join(d.sock, "pppring.sock") }

// LockPath returns the lock file guarding device.
func (d RuntimeDirs) LockPath(device string) string {
	name := strings.ReplaceAll(strings.TrimPrefix(device, "/dev/"), "/", ".")
	return filepath.Join(d.lock, "LCK.."+name)
}

// EnsureDirectories creates the runtime directories.
func (d RuntimeDirs) EnsureDirectories() error {
	for _, dir := range []string{d.base, d.lock, d.sock} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
