// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package behavior

import "github.com/samber/oops"

// Error codes for behavior registration and execution.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ErrNotAttached creates an error for executing a behavior the entity does not carry.
func ErrNotAttached(entityType, entityID, name string) error {
	return oops.Code(CodeNotFound).
		With("entity_type", entityType).
		With("entity_id", entityID).
		With("behavior", name).
		Errorf("behavior %q is not attached to %s %s", name, entityType, entityID)
}
