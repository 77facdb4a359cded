// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package access

import (
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// CodeInvalidGrant is returned for an empty caller or a bad pattern.
const CodeInvalidGrant = "VALIDATION_ERROR"

// compiledGrant holds a pattern and its compiled glob for efficient matching.
type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer holds capability grants per caller.
//
// Pattern matching uses gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments (crosses '.')
//
// Enforcer is safe for concurrent use. The zero value is ready to use.
type Enforcer struct {
	grants map[string][]compiledGrant // caller id -> compiled grants
	mu     sync.RWMutex
}

// NewEnforcer creates a capability enforcer.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]compiledGrant)}
}

func compile(patterns []string) ([]compiledGrant, error) {
	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return nil, oops.Code(CodeInvalidGrant).With("index", i).Errorf("capability %d: empty capability pattern", i)
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, oops.Code(CodeInvalidGrant).With("pattern", pattern).Wrapf(err, "capability %d (%q)", i, pattern)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}
	return compiled, nil
}

// SetGrants replaces the capabilities granted to caller. Nothing changes when
// any pattern is invalid. The caller "*" holds grants every caller shares.
func (e *Enforcer) SetGrants(caller string, capabilities []string) error {
	if caller == "" {
		return oops.Code(CodeInvalidGrant).Errorf("caller id cannot be empty")
	}
	compiled, err := compile(capabilities)
	if err != nil {
		return oops.With("caller", caller).Wrap(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.grants == nil {
		e.grants = make(map[string][]compiledGrant)
	}
	e.grants[caller] = compiled
	return nil
}

// RemoveGrants drops every grant for caller. It reports whether any existed.
func (e *Enforcer) RemoveGrants(caller string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.grants[caller]; !ok {
		return false
	}
	delete(e.grants, caller)
	return true
}

// GetGrants returns a copy of caller's patterns, or nil.
func (e *Enforcer) GetGrants(caller string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	grants, ok := e.grants[caller]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Callers returns every caller with grants, sorted.
func (e *Enforcer) Callers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	callers := make([]string, 0, len(e.grants))
	for c := range e.grants {
		callers = append(callers, c)
	}
	sort.Strings(callers)
	return callers
}

// Check reports whether caller holds capability, either through its own
// grants, the shared Everyone grants, or a pattern in held. Invalid held
// patterns are ignored. An empty capability is never held.
func (e *Enforcer) Check(caller, capability string, held ...string) bool {
	if capability == "" {
		return false
	}
	for _, pattern := range held {
		if g, err := glob.Compile(pattern, '.'); err == nil && pattern != "" && g.Match(capability) {
			return true
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if caller != "" && matchAny(e.grants[caller], capability) {
		return true
	}
	return matchAny(e.grants[Everyone], capability)
}

// Everyone is the caller id whose grants apply to all callers.
const Everyone = "*"

func matchAny(grants []compiledGrant, capability string) bool {
	for _, g := range grants {
		if g.glob.Match(capability) {
			return true
		}
	}
	return false
}
