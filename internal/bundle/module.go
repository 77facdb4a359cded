// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bundle

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/simcore/internal/eventbus"
)

// ModuleKind identifies which manifest section declared a module path.
type ModuleKind string

// Module kinds, in load order.
const (
	KindEntity   ModuleKind = "entity"
	KindBehavior ModuleKind = "behavior"
	KindCommand  ModuleKind = "command"
	KindEvent    ModuleKind = "event"
)

// EventModule subscribes a bundle's listeners. Every subscription made through
// sub is recorded so unload can remove exactly those listeners. Init may query
// the loader (Has, Get, EntityTemplate) but must not Load or Unload; the
// bundle being loaded is not visible until Init returns.
type EventModule interface {
	Init(ctx context.Context, sub eventbus.Subscriber) error
}

// EventFunc adapts a function to EventModule.
type EventFunc func(ctx context.Context, sub eventbus.Subscriber) error

// Init implements EventModule.
func (f EventFunc) Init(ctx context.Context, sub eventbus.Subscriber) error {
	return f(ctx, sub)
}

// EntityTemplate describes an entity a bundle can spawn.
type EntityTemplate struct {
	Name        string         `yaml:"name" json:"name"`
	Type        string         `yaml:"type" json:"type"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Behaviors   []string       `yaml:"behaviors,omitempty" json:"behaviors,omitempty"`
	Attributes  map[string]any `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	// Source names the bundle that declared the template.
	Source string `yaml:"-" json:"source,omitempty"`
}

// Validate checks the template has a name and a type.
func (t EntityTemplate) Validate() error {
	if t.Name == "" {
		return oops.Code(CodeValidation).With("field", "name").Errorf("entity template name cannot be empty")
	}
	if t.Type == "" {
		return oops.Code(CodeValidation).
			With("template", t.Name).
			With("field", "type").
			Errorf("entity template %q has no type", t.Name)
	}
	return nil
}

// TemplateLookup resolves an entity template by name. Loader.EntityTemplate
// satisfies it.
type TemplateLookup func(name string) (EntityTemplate, bool)

// ListenerHandle identifies one listener a bundle subscribed.
type ListenerHandle struct {
	Event string
	ID    eventbus.ListenerID
}

// recorder wraps a Subscriber and remembers every listener added through it.
type recorder struct {
	sub     eventbus.Subscriber
	mu      sync.Mutex
	handles []ListenerHandle
}

func (r *recorder) add(event string, id eventbus.ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, ListenerHandle{Event: event, ID: id})
}

func (r *recorder) snapshot() []ListenerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ListenerHandle(nil), r.handles...)
}

func (r *recorder) On(event string, l eventbus.Listener, opts ...eventbus.SubscribeOption) eventbus.ListenerID {
	id := r.sub.On(event, l, opts...)
	r.add(event, id)
	return id
}

func (r *recorder) Once(event string, l eventbus.Listener, opts ...eventbus.SubscribeOption) eventbus.ListenerID {
	id := r.sub.Once(event, l, opts...)
	r.add(event, id)
	return id
}

func (r *recorder) Off(event string, id eventbus.ListenerID) bool {
	r.mu.Lock()
	for i, h := range r.handles {
		if h.Event == event && h.ID == id {
			r.handles = append(r.handles[:i], r.handles[i+1:]...)
			break
		}
	}
	r.mu.Unlock()
	return r.sub.Off(event, id)
}
