// Package locator implements the bounded-depth filesystem walk that
// maps service names — including nested prefixes — to Unix-domain
// sockets across a workspace.
package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultMaxDepth bounds the recursive scan.
const DefaultMaxDepth = 5

const socketSuffix = ".sock"
const tapDirName = ".tap"
const metaFileName = "meta.yaml"

// tapDir is one discovered ".tap" directory.
type tapDir struct {
	Path   string // absolute path to the .tap directory
	Prefix string // base-relative path of the parent ("" for root)
}

// ServiceMeta is the optional, best-effort "<tap_dir>/meta.yaml" sidecar
// a runner may drop next to its socket (SPEC_FULL.md §3, additive).
// Discovery never depends on it; sockets remain authoritative.
type ServiceMeta struct {
	Name      string    `yaml:"name"`
	PID       int       `yaml:"pid"`
	StartedAt time.Time `yaml:"started_at"`
}

// DiscoveredService is a name resolved to a socket, per spec.md §3.
type DiscoveredService struct {
	Name     string
	Path     string
	TapDir   string
	Prefix   string
	BaseName string
	Metadata *ServiceMeta
}

// Walk scans baseDir to maxDepth, skipping "node_modules" and any
// dotfile/dotdir except the literal ".tap", recording every ".tap"
// directory found. Filesystem errors on individual entries are
// swallowed and the walk continues (discovery is best-effort, per
// spec.md §7).
func Walk(baseDir string, maxDepth int) []tapDir {
	var found []tapDir
	var walk func(dir, relPrefix string, depth int)
	walk = func(dir, relPrefix string, depth int) {
		if depth > maxDepth {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, entry := range entries {
			name := entry.Name()
			if !entry.IsDir() {
				continue
			}
			if name == "node_modules" {
				continue
			}
			if name == tapDirName {
				abs, err := filepath.Abs(filepath.Join(dir, name))
				if err != nil {
					continue
				}
				found = append(found, tapDir{Path: abs, Prefix: relPrefix})
				continue
			}
			if strings.HasPrefix(name, ".") {
				continue
			}
			childPrefix := name
			if relPrefix != "" {
				childPrefix = relPrefix + "/" + name
			}
			walk(filepath.Join(dir, name), childPrefix, depth+1)
		}
	}
	walk(baseDir, "", 0)
	return found
}

// Enumerate returns every service discoverable under baseDir.
func Enumerate(baseDir string, maxDepth int) []DiscoveredService {
	var out []DiscoveredService
	for _, dir := range Walk(baseDir, maxDepth) {
		entries, err := os.ReadDir(dir.Path)
		if err != nil {
			continue
		}
		meta := readMeta(dir.Path)
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), socketSuffix) {
				continue
			}
			baseName := strings.TrimSuffix(entry.Name(), socketSuffix)
			name := baseName
			if dir.Prefix != "" {
				name = dir.Prefix + ":" + baseName
			}
			out = append(out, DiscoveredService{
				Name:     name,
				Path:     filepath.Join(dir.Path, entry.Name()),
				TapDir:   dir.Path,
				Prefix:   dir.Prefix,
				BaseName: baseName,
				Metadata: meta,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func readMeta(tapDirPath string) *ServiceMeta {
	data, err := os.ReadFile(filepath.Join(tapDirPath, metaFileName))
	if err != nil {
		return nil
	}
	var meta ServiceMeta
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return &meta
}

// ResolveRequest parameterizes Resolve.
type ResolveRequest struct {
	BaseDir string
	Name    string
	// TapDir, if set, bypasses discovery entirely: the socket is
	// addressed directly at <TapDir>/<base_name>.sock.
	TapDir  string
	MaxDepth int
}

// Resolve maps a user-supplied name to a socket path, per spec.md
// §4.4. If nothing matches, it returns the expected default path so
// the caller can surface a "no runner" message using it, alongside
// ErrNotFound.
func Resolve(req ResolveRequest) (DiscoveredService, error) {
	if err := ValidateName(req.Name); err != nil {
		return DiscoveredService{}, fmt.Errorf("invalid service name: %w", err)
	}

	_, baseName := splitName(req.Name)

	if req.TapDir != "" {
		return DiscoveredService{
			Name:     req.Name,
			Path:     filepath.Join(req.TapDir, baseName+socketSuffix),
			TapDir:   req.TapDir,
			BaseName: baseName,
		}, nil
	}

	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	services := Enumerate(req.BaseDir, maxDepth)

	for _, svc := range services {
		if svc.Name == req.Name {
			return svc, nil
		}
	}

	if !strings.Contains(req.Name, ":") {
		var matches []DiscoveredService
		for _, svc := range services {
			if svc.BaseName == req.Name {
				matches = append(matches, svc)
			}
		}
		if len(matches) == 1 {
			return matches[0], nil
		}
	}

	defaultPath := filepath.Join(req.BaseDir, tapDirName, req.Name+socketSuffix)
	return DiscoveredService{
		Name:     req.Name,
		Path:     defaultPath,
		BaseName: baseName,
	}, ErrNotFound
}

// ErrNotFound is returned by Resolve when no discovered service matches
// the requested name. The returned DiscoveredService still carries a
// usable default socket path.
var ErrNotFound = fmt.Errorf("no runner found for requested service name")
