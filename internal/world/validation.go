// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package world

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Validation limits for domain types.
const (
	MaxNameLength    = 100
	MaxContentLength = 4000

	// StatMin and StatMax bound health, sanity and stress.
	StatMin = 0
	StatMax = 100
)

// ValidationError represents an input validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateName checks that a name is valid.
// Names must be non-empty, valid UTF-8, no control characters, and within length limit.
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Message: "cannot be empty"}
	}
	if !utf8.ValidString(name) {
		return &ValidationError{Field: "name", Message: "must be valid UTF-8"}
	}
	if len(name) > MaxNameLength {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("exceeds maximum length of %d", MaxNameLength)}
	}
	if hasControlChars(name) {
		return &ValidationError{Field: "name", Message: "cannot contain control characters"}
	}
	return nil
}

// ValidateContent checks memory content: non-empty, valid UTF-8, bounded.
func ValidateContent(content string) error {
	if content == "" {
		return &ValidationError{Field: "content", Message: "cannot be empty"}
	}
	if !utf8.ValidString(content) {
		return &ValidationError{Field: "content", Message: "must be valid UTF-8"}
	}
	if len(content) > MaxContentLength {
		return &ValidationError{Field: "content", Message: fmt.Sprintf("exceeds maximum length of %d", MaxContentLength)}
	}
	return nil
}

// ClampStat bounds v to [StatMin, StatMax].
func ClampStat(v int) int {
	switch {
	case v < StatMin:
		return StatMin
	case v > StatMax:
		return StatMax
	default:
		return v
	}
}

func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
