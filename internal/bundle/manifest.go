// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bundle

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest file name inside a bundle directory.
const ManifestFile = "bundle.yaml"

// Manifest represents a bundle.yaml file. Unknown fields are ignored.
type Manifest struct {
	Name         string              `yaml:"name" json:"name" jsonschema:"pattern=^[a-z]([a-z0-9-]*[a-z0-9])?$,maxLength=64"`
	Version      string              `yaml:"version" json:"version" jsonschema:"minLength=1"`
	Description  string              `yaml:"description,omitempty" json:"description,omitempty"`
	Dependencies []string            `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Commands     []string            `yaml:"commands,omitempty" json:"commands,omitempty"`
	Behaviors    map[string][]string `yaml:"behaviors,omitempty" json:"behaviors,omitempty"`
	Entities     []string            `yaml:"entities,omitempty" json:"entities,omitempty"`
	Events       []string            `yaml:"events,omitempty" json:"events,omitempty"`
}

// Dependency is a parsed dependency entry: "name" or "name@constraint".
type Dependency struct {
	Name       string
	Constraint *semver.Constraints
}

func (d Dependency) String() string {
	if d.Constraint == nil {
		return d.Name
	}
	return d.Name + "@" + d.Constraint.String()
}

// Allows reports whether version satisfies the dependency constraint.
func (d Dependency) Allows(version *semver.Version) bool {
	return d.Constraint == nil || d.Constraint.Check(version)
}

// maxNameLength is the maximum allowed length for bundle names.
const maxNameLength = 64

// namePattern validates bundle names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a bundle.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, oops.Code(CodeValidation).In("bundle").Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.Code(CodeValidation).In("bundle").Wrapf(err, "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return validationError(m.Name, "name must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen")
	}
	if len(m.Name) > maxNameLength {
		return validationError(m.Name, fmt.Sprintf("name must be %d characters or less, got %d", maxNameLength, len(m.Name)))
	}

	if m.Version == "" {
		return validationError(m.Name, "version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return validationError(m.Name, fmt.Sprintf("version %q is not a semantic version", m.Version))
	}

	if _, err := m.ParseDependencies(); err != nil {
		return err
	}

	for _, p := range m.Commands {
		if strings.TrimSpace(p) == "" {
			return validationError(m.Name, "commands contains an empty path")
		}
	}
	for entityType, paths := range m.Behaviors {
		if entityType == "" {
			return validationError(m.Name, "behaviors has an empty entity type")
		}
		for _, p := range paths {
			if strings.TrimSpace(p) == "" {
				return validationError(m.Name, fmt.Sprintf("behaviors.%s contains an empty path", entityType))
			}
		}
	}
	for _, p := range m.Entities {
		if strings.TrimSpace(p) == "" {
			return validationError(m.Name, "entities contains an empty path")
		}
	}
	for _, p := range m.Events {
		if strings.TrimSpace(p) == "" {
			return validationError(m.Name, "events contains an empty path")
		}
	}

	return nil
}

// SemVer returns the parsed manifest version.
func (m *Manifest) SemVer() (*semver.Version, error) {
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, validationError(m.Name, fmt.Sprintf("version %q is not a semantic version", m.Version))
	}
	return v, nil
}

// ParseDependencies parses every dependency entry.
func (m *Manifest) ParseDependencies() ([]Dependency, error) {
	deps := make([]Dependency, 0, len(m.Dependencies))
	seen := make(map[string]bool, len(m.Dependencies))
	for _, raw := range m.Dependencies {
		d, err := ParseDependency(raw)
		if err != nil {
			return nil, validationError(m.Name, err.Error())
		}
		if d.Name == m.Name {
			return nil, validationError(m.Name, "bundle cannot depend on itself")
		}
		if seen[d.Name] {
			return nil, validationError(m.Name, fmt.Sprintf("dependency %q is listed twice", d.Name))
		}
		seen[d.Name] = true
		deps = append(deps, d)
	}
	return deps, nil
}

// DependsOn reports whether the manifest declares a dependency on name.
func (m *Manifest) DependsOn(name string) bool {
	for _, raw := range m.Dependencies {
		if depName, _, _ := strings.Cut(raw, "@"); strings.TrimSpace(depName) == name {
			return true
		}
	}
	return false
}

// ParseDependency parses "name" or "name@constraint".
func ParseDependency(raw string) (Dependency, error) {
	name, constraint, hasConstraint := strings.Cut(strings.TrimSpace(raw), "@")
	name = strings.TrimSpace(name)
	if !namePattern.MatchString(name) {
		return Dependency{}, fmt.Errorf("dependency %q has an invalid bundle name", raw)
	}
	d := Dependency{Name: name}
	if hasConstraint {
		c, err := semver.NewConstraint(strings.TrimSpace(constraint))
		if err != nil {
			return Dependency{}, fmt.Errorf("dependency %q has an invalid version constraint: %w", raw, err)
		}
		d.Constraint = c
	}
	return d, nil
}
