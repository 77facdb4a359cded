// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package effect

import "github.com/samber/oops"

// Error codes for the effect engine.
const (
	CodeInvalidEffect = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeHookError     = "LISTENER_ERROR"
)

// ErrUnknownEffect is returned by the catalog for unregistered names.
func ErrUnknownEffect(name string) error {
	return oops.Code(CodeNotFound).
		With("effect", name).
		Errorf("unknown effect: %s", name)
}

// ErrCharacterNotFound is returned when a target character no longer exists.
func ErrCharacterNotFound(characterID string) error {
	return oops.Code(CodeNotFound).
		With("character_id", characterID).
		Errorf("character %s not found", characterID)
}
