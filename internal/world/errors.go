// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package world

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes returned by stores.
const (
	CodeNotFound   = "NOT_FOUND"
	CodeValidation = "VALIDATION_ERROR"
	CodeStoreError = "STORE_ERROR"
)

// ErrNotFound is wrapped by update operations that target a missing entity.
// Lookups return nil, nil instead.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with the entity kind and id.
func NotFound(kind, id string) error {
	return oops.Code(CodeNotFound).
		With("entity_type", kind).
		With("entity_id", id).
		Wrapf(ErrNotFound, "%s %s", kind, id)
}

// Invalid wraps a ValidationError.
func Invalid(kind string, err error) error {
	return oops.Code(CodeValidation).
		With("entity_type", kind).
		Wrap(err)
}
