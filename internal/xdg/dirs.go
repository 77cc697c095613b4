// Package xdg resolves the XDG base directories used by rclone-sync-helper.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// Application identifiers.
const (
	AppID      = "io.rclone.sync-helper"
	BinaryName = "rclone_sync_helper"

	projectQualifier    = "io"
	projectOrganization = "rclone"
	projectApplication  = "sync-helper"
)

// Dirs holds the resolved base directories.
type Dirs struct {
	Home       string
	ConfigHome string
	DataHome   string
	StateHome  string
	BinHome    string
	CacheHome  string
}

// homedirDir is overridden in tests.
var homedirDir = homedir.Dir

// Resolve reads the XDG environment variables and applies the XDG defaults.
// Relative values are ignored as the base directory rules require.
func Resolve() (Dirs, error) {
	home, err := homedirDir()
	if err != nil {
		return Dirs{}, fmt.Errorf("resolving home directory: %w", err)
	}

	return Dirs{
		Home:       home,
		ConfigHome: envDir("XDG_CONFIG_HOME", filepath.Join(home, ".config")),
		DataHome:   envDir("XDG_DATA_HOME", filepath.Join(home, ".local", "share")),
		StateHome:  envDir("XDG_STATE_HOME", filepath.Join(home, ".local", "state")),
		BinHome:    envDir("XDG_BIN_HOME", filepath.Join(home, ".local", "bin")),
		CacheHome:  envDir("XDG_CACHE_HOME", filepath.Join(home, ".cache")),
	}, nil
}

func envDir(key, fallback string) string {
	if v := os.Getenv(key); v != "" && filepath.IsAbs(v) {
		return v
	}
	return fallback
}

// ConfigDir is the project config directory, e.g. ~/.config/io/rclone/sync-helper.
func (d Dirs) ConfigDir() string {
	return filepath.Join(d.ConfigHome, projectQualifier, projectOrganization, projectApplication)
}

// JobsDir holds one <job>.toml per job.
func (d Dirs) JobsDir() string {
	return filepath.Join(d.ConfigDir(), "jobs")
}

// StateDir is the project state directory holding cached sync state.
func (d Dirs) StateDir() string {
	return filepath.Join(d.StateHome, projectApplication)
}

// SystemdUserDir is where user unit files live.
func (d Dirs) SystemdUserDir() string {
	return filepath.Join(d.ConfigHome, "systemd", "user")
}

// BisyncCacheDir is rclone's bisync working directory holding .lck files.
func (d Dirs) BisyncCacheDir() string {
	return filepath.Join(d.Home, ".cache", "rclone", "bisync")
}

// Expand replaces a leading "~/" or "$HOME/" with the home directory.
func (d Dirs) Expand(path string) string {
	if rest, ok := strings.CutPrefix(path, "$HOME/"); ok {
		return filepath.Join(d.Home, rest)
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		return filepath.Join(d.Home, rest)
	}
	return path
}

