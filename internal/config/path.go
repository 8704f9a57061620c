package config

import (
	"os"
	"path/filepath"
)

// DataDirEnv overrides the default data directory.
const DataDirEnv = "EVSTORE_DATA_DIR"

// DefaultDataDir returns where the store keeps its Pebble directory when no
// --data-dir is given: EVSTORE_DATA_DIR, then XDG_DATA_HOME/evstore, then the
// platform's application data location, then ~/.evstore.
func DefaultDataDir() string {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "evstore")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	for _, c := range []struct{ parent, dir string }{
		{"/var/lib", "/var/lib/evstore"},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", "evstore")},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", "evstore")},
	} {
		if isDir(c.parent) {
			return c.dir
		}
	}
	return filepath.Join(home, ".evstore")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
