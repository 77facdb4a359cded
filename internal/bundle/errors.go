// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bundle

import "github.com/samber/oops"

// Error codes returned by the loader.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeDependency    = "DEPENDENCY_ERROR"
	CodeLoad          = "LOAD_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeAlreadyLoaded = "ALREADY_LOADED"
)

func validationError(bundle, reason string) error {
	return oops.Code(CodeValidation).
		In("bundle").
		With("bundle", bundle).
		With("reason", reason).
		Errorf("invalid manifest for bundle %q: %s", bundle, reason)
}

func loadError(bundle, file, reason string) error {
	return oops.Code(CodeLoad).
		In("bundle").
		With("bundle", bundle).
		With("file", file).
		With("reason", reason).
		Errorf("load %s from bundle %q: %s", file, bundle, reason)
}

// ErrDependencyMissing reports a dependency that is not loaded.
func ErrDependencyMissing(bundle, dependency string) error {
	return oops.Code(CodeDependency).
		In("bundle").
		With("bundle", bundle).
		With("dependency", dependency).
		Errorf("bundle %q depends on %q, which is not loaded", bundle, dependency)
}

// ErrNotLoaded reports an unknown bundle name.
func ErrNotLoaded(name string) error {
	return oops.Code(CodeNotFound).
		In("bundle").
		With("bundle", name).
		Errorf("bundle %q is not loaded", name)
}
