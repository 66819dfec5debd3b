// Package cursorcache resolves and persists the small per-service
// key-value file the observe client uses to remember "last seen
// sequence" across invocations. It is an external collaborator to the
// control protocol, not part of the runner's core (spec.md §1).
package cursorcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const fileName = "cursors.json"

// Dir resolves the platform cache directory tap uses for cursors.json:
// the TAP_CACHE_DIR override if set, else ~/Library/Caches/tap on macOS,
// else $XDG_CACHE_HOME/tap, else ~/.cache/tap.
func Dir() (string, error) {
	if override := os.Getenv("TAP_CACHE_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Caches", "tap"), nil
	}

	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "tap"), nil
	}
	return filepath.Join(home, ".cache", "tap"), nil
}

// filePath returns the full path to cursors.json.
func filePath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Key composes the cache key for a service: the absolute tap directory
// joined with the service name.
func Key(absTapDir, serviceName string) string {
	return absTapDir + ":" + serviceName
}

// Cache is the in-memory view of cursors.json.
type Cache struct {
	values map[string]uint64
}

// Load reads cursors.json, treating a missing file, a non-regular file,
// or corrupt JSON as an empty cache rather than an error — the cache is
// an optimization, never load-bearing for correctness.
func Load() *Cache {
	c := &Cache{values: map[string]uint64{}}

	path, err := filePath()
	if err != nil {
		return c
	}

	info, err := os.Lstat(path)
	if err != nil {
		return c
	}
	if !info.Mode().IsRegular() {
		_ = os.Remove(path)
		return c
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}

	var raw map[string]uint64
	if err := json.Unmarshal(data, &raw); err != nil {
		return c
	}
	c.values = raw
	return c
}

// Get returns the cached cursor for key, and whether one was found.
func (c *Cache) Get(key string) (uint64, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Set records cursor for key. Callers must call Save to persist.
func (c *Cache) Set(key string, cursor uint64) {
	c.values[key] = cursor
}

// Save writes the cache to disk atomically: a temp file in the same
// directory, then a rename. Directory is created 0700, file 0600.
func (c *Cache) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.Marshal(c.values)
	if err != nil {
		return fmt.Errorf("encoding cursor cache: %w", err)
	}

	path := filepath.Join(dir, fileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing cursor cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming cursor cache into place: %w", err)
	}
	return nil
}
