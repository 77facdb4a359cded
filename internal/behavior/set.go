// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package behavior

import (
	"context"
	"sort"
	"sync"
)

// Bound is a behavior closure that already captured its entity.
type Bound func(ctx context.Context, args ...any) (any, error)

// Set holds the behaviors attached to one entity, keyed by name.
// Attaching a name that is already present replaces the binding.
type Set struct {
	mu    sync.RWMutex
	kind  string
	owner string
	bound map[string]Bound
}

// NewSet creates an empty set for the entity with the given type and id.
func NewSet(entityType, entityID string) *Set {
	return &Set{
		kind:  entityType,
		owner: entityID,
		bound: make(map[string]Bound),
	}
}

func (s *Set) bind(name string, fn Bound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bound[name] = fn
}

// Execute runs the named behavior with args.
func (s *Set) Execute(ctx context.Context, name string, args ...any) (any, error) {
	s.mu.RLock()
	fn, ok := s.bound[name]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotAttached(s.kind, s.owner, name)
	}
	return fn(ctx, args...)
}

// Has reports whether name is attached.
func (s *Set) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.bound[name]
	return ok
}

// Names returns the attached behavior names, sorted.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.bound))
	for name := range s.bound {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of attached behaviors.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bound)
}

// Remove drops the named binding.
func (s *Set) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bound[name]; !ok {
		return false
	}
	delete(s.bound, name)
	return true
}
