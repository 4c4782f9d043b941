// Package home manages the marl state directory.
//
// Layout:
//
//	<root>/
//	  arls.json       (cache snapshot: records, overall expiry, content hash)
//	  arls.json.tmp   (transient, during atomic writes)
//
// The default root is the per-user application data directory, the same
// location earlier marl releases wrote arls.json to, so an existing cache is
// picked up (and migrated) without a --home flag.
package home

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppName names the default state directory.
	AppName = "marl"

	orgName  = "bednarczyk"
	bundleID = "xyz.bednarczyk.marl"
)

// Dir represents a marl state directory.
type Dir struct {
	root string
}

// New creates a Dir with an explicit root path.
func New(root string) Dir {
	return Dir{root: root}
}

// Default returns a Dir using the platform-appropriate data location:
//   - Linux:   $XDG_DATA_HOME/marl or ~/.local/share/marl
//   - macOS:   ~/Library/Application Support/xyz.bednarczyk.marl
//   - Windows: %APPDATA%\bednarczyk\marl\data
func Default() (Dir, error) {
	root, err := dataDir(runtime.GOOS, os.Getenv, os.UserHomeDir)
	if err != nil {
		return Dir{}, fmt.Errorf("determine data directory: %w", err)
	}
	return Dir{root: root}, nil
}

func dataDir(goos string, getenv func(string) string, userHome func() (string, error)) (string, error) {
	switch goos {
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			return "", errors.New("%APPDATA% is not defined")
		}
		return filepath.Join(appData, orgName, AppName, "data"), nil
	case "darwin", "ios":
		home, err := userHome()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", bundleID), nil
	default:
		// Relative XDG paths are invalid and ignored.
		if xdg := getenv("XDG_DATA_HOME"); filepath.IsAbs(xdg) {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := userHome()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", AppName), nil
	}
}

// Resolve returns New(override) if override is set, otherwise Default().
func Resolve(override string) (Dir, error) {
	if override != "" {
		return New(override), nil
	}
	return Default()
}

// Root returns the state directory path.
func (d Dir) Root() string {
	return d.root
}

// CachePath returns the path to the cache snapshot file.
func (d Dir) CachePath() string {
	return filepath.Join(d.root, "arls.json")
}
