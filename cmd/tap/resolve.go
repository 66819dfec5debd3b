package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tap-run/tap/internal/control"
	"github.com/tap-run/tap/internal/locator"
)

// resolveClient finds the socket for name under dir (default: current
// directory) and returns a control.Client bound to its socket. name
// defaults to the basename of dir when empty, matching the common case
// of running tap from inside the service's own workspace.
func resolveClient(name, dir string) (*control.Client, locator.DiscoveredService, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, locator.DiscoveredService{}, fmt.Errorf("resolving working directory: %w", err)
		}
		dir = wd
	}
	if name == "" {
		name = filepath.Base(dir)
	}

	svc, err := locator.Resolve(locator.ResolveRequest{BaseDir: dir, Name: name})
	if err != nil {
		if err == locator.ErrNotFound {
			return nil, svc, fmt.Errorf("no runner found for %q under %s (looked for %s)", name, dir, svc.Path)
		}
		return nil, svc, err
	}

	return control.NewClient(svc.Path), svc, nil
}
