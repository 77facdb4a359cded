// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	bundlelua "github.com/holomush/simcore/internal/bundle/lua"
)

// Source resolves a bundle's manifest and the modules it declares.
type Source interface {
	// ManifestData returns the raw bundle.yaml document.
	ManifestData() ([]byte, error)
	// Resolve returns the module declared at path in the given manifest section.
	Resolve(ctx context.Context, bundle, path string, kind ModuleKind) (any, error)
	// Location describes where the bundle comes from, for logs.
	Location() string
}

// Static is a bundle compiled into the binary: its manifest plus a module for
// every declared path. Accepted module values are EntityTemplate,
// behavior.Definition, command.Command and EventModule (or pointers to them).
type Static struct {
	Manifest []byte
	Modules  map[string]any
}

// ManifestData implements Source.
func (s Static) ManifestData() ([]byte, error) {
	return s.Manifest, nil
}

// Resolve implements Source.
func (s Static) Resolve(_ context.Context, _, path string, _ ModuleKind) (any, error) {
	mod, ok := s.Modules[path]
	if !ok {
		return nil, fmt.Errorf("module %s is not registered", path)
	}
	return mod, nil
}

// Location implements Source.
func (s Static) Location() string { return "static" }

// Catalog holds the static bundles registered at startup, keyed by name.
type Catalog struct {
	mu      sync.RWMutex
	bundles map[string]Static
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{bundles: make(map[string]Static)}
}

// Register adds a static bundle under its manifest name.
func (c *Catalog) Register(s Static) error {
	m, err := ParseManifest(s.Manifest)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundles[m.Name] = s
	return nil
}

// MustRegister is Register that panics on an invalid manifest.
func (c *Catalog) MustRegister(s Static) {
	if err := c.Register(s); err != nil {
		panic(err)
	}
}

// Lookup returns the static bundle registered under name.
func (c *Catalog) Lookup(name string) (Static, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.bundles[name]
	return s, ok
}

// Names returns the registered bundle names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.bundles))
	for name := range c.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dir is a bundle directory on disk: a bundle.yaml manifest, Lua modules for
// commands, behaviors and events, and YAML entity templates.
type Dir struct {
	Path string
	Lua  *bundlelua.Runtime
}

// ManifestData implements Source.
func (d Dir) ManifestData() ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.Path, ManifestFile)) //nolint:gosec // bundle directories are operator supplied
	if err != nil {
		return nil, oops.In("bundle").With("dir", d.Path).Wrapf(err, "read manifest")
	}
	return data, nil
}

// Location implements Source.
func (d Dir) Location() string { return d.Path }

// Resolve implements Source. Paths must stay inside the bundle directory.
func (d Dir) Resolve(ctx context.Context, bundle, path string, kind ModuleKind) (any, error) {
	if !filepath.IsLocal(path) {
		return nil, fmt.Errorf("path escapes the bundle directory")
	}
	data, err := os.ReadFile(filepath.Join(d.Path, path)) //nolint:gosec // checked by IsLocal above
	if err != nil {
		return nil, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if kind != KindEntity {
			return nil, fmt.Errorf("%s modules must be Lua files", kind)
		}
		var tmpl EntityTemplate
		if err := yaml.Unmarshal(data, &tmpl); err != nil {
			return nil, fmt.Errorf("invalid entity YAML: %w", err)
		}
		return tmpl, nil
	case ".lua":
		rt := d.Lua
		if rt == nil {
			rt = bundlelua.NewRuntime()
		}
		chunk := bundlelua.Chunk{Bundle: bundle, Path: path, Code: string(data)}
		switch kind {
		case KindCommand:
			return rt.Command(ctx, chunk)
		case KindBehavior:
			return rt.Behavior(ctx, chunk)
		case KindEvent:
			return rt.Events(ctx, chunk)
		default:
			return nil, fmt.Errorf("entity templates must be YAML files")
		}
	default:
		return nil, fmt.Errorf("unsupported module extension %q", ext)
	}
}

// IsBundleDir reports whether path is a directory holding a bundle manifest.
func IsBundleDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, ManifestFile))
	return err == nil && !info.IsDir()
}
