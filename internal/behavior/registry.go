// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package behavior is the type-scoped catalogue of reusable entity behaviors
// and the per-entity sets they are attached to.
package behavior

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/oops"
)

// Entity is anything behaviors can be attached to.
type Entity interface {
	EntityType() string
	EntityID() string
	Behaviors() *Set
}

// Func is a behavior implementation. The owning entity is always the first argument.
type Func func(ctx context.Context, entity Entity, args ...any) (any, error)

// Definition is a named behavior registered for one entity type.
type Definition struct {
	Name        string
	Description string
	// Source names the bundle that registered the behavior.
	Source  string
	Execute Func
}

// Validate checks that the definition has a name and an implementation.
func (d Definition) Validate() error {
	if d.Name == "" {
		return oops.Code(CodeValidation).
			With("field", "name").
			Errorf("behavior name cannot be empty")
	}
	if d.Execute == nil {
		return oops.Code(CodeValidation).
			With("behavior", d.Name).
			With("field", "execute").
			Errorf("behavior %q has no execute function", d.Name)
	}
	return nil
}

// Registry maps entity type -> behavior name -> definition.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]map[string]Definition
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		defs:   make(map[string]map[string]Definition),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores def under (entityType, def.Name). An existing definition is
// replaced: last write wins, which is what bundle reloads rely on.
func (r *Registry) Register(entityType string, def Definition) error {
	if entityType == "" {
		return oops.Code(CodeValidation).
			With("behavior", def.Name).
			Errorf("entity type cannot be empty")
	}
	if err := def.Validate(); err != nil {
		return oops.With("entity_type", entityType).Wrap(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.defs[entityType]
	if !ok {
		byName = make(map[string]Definition)
		r.defs[entityType] = byName
	}
	if existing, ok := byName[def.Name]; ok {
		r.logger.Debug("behavior overwritten",
			"entity_type", entityType,
			"behavior", def.Name,
			"previous_source", existing.Source,
			"new_source", def.Source)
	}
	byName[def.Name] = def
	return nil
}

// Unregister removes (entityType, name).
func (r *Registry) Unregister(entityType, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(entityType, name, nil)
}

// UnregisterOwned removes (entityType, name) only while it is still the
// definition registered by source.
func (r *Registry) UnregisterOwned(entityType, name, source string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(entityType, name, func(d Definition) bool { return d.Source == source })
}

func (r *Registry) remove(entityType, name string, match func(Definition) bool) bool {
	byName, ok := r.defs[entityType]
	if !ok {
		return false
	}
	def, ok := byName[name]
	if !ok || (match != nil && !match(def)) {
		return false
	}
	delete(byName, name)
	if len(byName) == 0 {
		delete(r.defs, entityType)
	}
	return true
}

// Get returns the definition for (entityType, name).
func (r *Registry) Get(entityType, name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[entityType][name]
	return def, ok
}

// GetByType returns every definition for entityType, sorted by name.
func (r *Registry) GetByType(entityType string) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byName := r.defs[entityType]
	defs := make([]Definition, 0, len(byName))
	for _, def := range byName {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Types returns the entity types with at least one behavior, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.defs))
	for t := range r.defs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Attach binds the behavior registered for the entity's type under name to the
// entity. It returns false, logging a warning, when no such behavior exists; the
// entity's set is left unchanged in that case.
func (r *Registry) Attach(entity Entity, name string) bool {
	def, ok := r.Get(entity.EntityType(), name)
	if !ok {
		r.logger.Warn("behavior not registered for entity type",
			"entity_type", entity.EntityType(),
			"entity_id", entity.EntityID(),
			"behavior", name)
		return false
	}

	exec := def.Execute
	entity.Behaviors().bind(name, func(ctx context.Context, args ...any) (any, error) {
		return exec(ctx, entity, args...)
	})
	return true
}

// AttachAll attaches every name and returns how many succeeded.
func (r *Registry) AttachAll(entity Entity, names ...string) int {
	attached := 0
	for _, name := range names {
		if r.Attach(entity, name) {
			attached++
		}
	}
	return attached
}

// Detach removes the named binding from the entity.
func (r *Registry) Detach(entity Entity, name string) bool {
	return entity.Behaviors().Remove(name)
}
