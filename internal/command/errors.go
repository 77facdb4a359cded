// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"github.com/samber/oops"
)

// Error codes for command and tool failures.
const (
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidArgs      = "INVALID_ARGS"
	CodeInvalidCommand   = "VALIDATION_ERROR"
	CodeWorldError       = "WORLD_ERROR"
	CodeHandlerPanic     = "HANDLER_PANIC"
)

// ErrNotFound creates an error for an unknown command.
func ErrNotFound(name string) error {
	return oops.Code(CodeNotFound).
		With("command", name).
		Errorf("command not found: %s", name)
}

// ErrPermissionDenied creates an error for a denied tool call.
func ErrPermissionDenied(tool, reason string) error {
	return oops.Code(CodePermissionDenied).
		With("tool", tool).
		With("reason", reason).
		Errorf("permission denied for tool %s", tool)
}

// ErrInvalidArgs creates an error for invalid arguments.
func ErrInvalidArgs(cmd, usage string) error {
	return oops.Code(CodeInvalidArgs).
		With("command", cmd).
		With("usage", usage).
		Errorf("invalid arguments")
}

// WorldError creates an error for world state issues with a caller-facing message.
func WorldError(message string, cause error) error {
	builder := oops.Code(CodeWorldError).With("message", message)
	if cause != nil {
		return builder.Wrap(cause)
	}
	return builder.Errorf("%s", message)
}

// Message extracts the caller-facing text placed in a failure envelope.
func Message(err error) string {
	if err == nil {
		return "Something went wrong. Try again."
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return err.Error()
	}

	switch oopsErr.Code() {
	case CodePermissionDenied:
		if reason, ok := oopsErr.Context()["reason"].(string); ok && reason != "" {
			return "Permission denied: " + reason
		}
		return "Permission denied."
	case CodeInvalidArgs:
		if usage, ok := oopsErr.Context()["usage"].(string); ok && usage != "" {
			return "Usage: " + usage
		}
		return "Invalid arguments."
	case CodeWorldError:
		if msg, ok := oopsErr.Context()["message"].(string); ok {
			return msg
		}
		return "Something went wrong. Try again."
	case CodeHandlerPanic:
		return "Something went wrong. Try again."
	default:
		return err.Error()
	}
}
