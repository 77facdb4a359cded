// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package effect

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Params override a factory's defaults. Zero fields keep the default.
type Params struct {
	Duration time.Duration
	Power    int
}

// Factory builds a definition from params.
type Factory func(p Params) Definition

// Catalog maps effect names to factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// NewBuiltinCatalog creates a catalog holding poison, regeneration, panic and focus.
func NewBuiltinCatalog() *Catalog {
	c := NewCatalog()
	for name, f := range builtins {
		// Builtin names are unique constants.
		_ = c.Register(name, f) //nolint:errcheck
	}
	return c
}

// Register adds a factory, replacing any previous one for name.
func (c *Catalog) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return oops.Code(CodeInvalidEffect).With("effect", name).Errorf("effect factory needs a name and a function")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
	return nil
}

// Unregister removes name.
func (c *Catalog) Unregister(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.factories[name]; !ok {
		return false
	}
	delete(c.factories, name)
	return true
}

// Definition builds the named effect.
func (c *Catalog) Definition(name string, p Params) (Definition, error) {
	c.mu.RLock()
	f, ok := c.factories[name]
	c.mu.RUnlock()
	if !ok {
		return Definition{}, ErrUnknownEffect(name)
	}
	def := f(p)
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Names returns the registered effect names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p Params) duration(d time.Duration) time.Duration {
	if p.Duration > 0 {
		return p.Duration
	}
	return d
}

func (p Params) power(n int) int {
	if p.Power > 0 {
		return p.Power
	}
	return n
}

var builtins = map[string]Factory{
	"poison":       Poison,
	"regeneration": Regeneration,
	"panic":        Panic,
	"focus":        Focus,
}

// Poison deals Potency damage every second. Up to three separate stacks.
func Poison(p Params) Definition {
	return Definition{
		Name:         "poison",
		Description:  "Loses health every second.",
		Kind:         Debuff,
		Duration:     p.duration(10 * time.Second),
		TickInterval: time.Second,
		Power:        p.power(2),
		MaxStacks:    3,
		Stacking:     StackSeparate,
		Hooks: Hooks{
			OnTick: func(ctx context.Context, inst Instance, t *Target) error {
				_, err := t.AdjustHealth(ctx, -inst.Potency())
				return err
			},
		},
	}
}

// Regeneration heals Potency every five seconds. Re-applying refreshes it.
func Regeneration(p Params) Definition {
	return Definition{
		Name:         "regeneration",
		Description:  "Recovers health over time.",
		Kind:         Buff,
		Duration:     p.duration(60 * time.Second),
		TickInterval: 5 * time.Second,
		Power:        p.power(3),
		Unique:       true,
		Refreshes:    true,
		Hooks: Hooks{
			OnTick: func(ctx context.Context, inst Instance, t *Target) error {
				_, err := t.AdjustHealth(ctx, inst.Potency())
				return err
			},
		},
	}
}

// Panic raises stress on activation and every two seconds, merging up to two stacks.
func Panic(p Params) Definition {
	return Definition{
		Name:         "panic",
		Description:  "Stress climbs and sanity frays.",
		Kind:         Debuff,
		Duration:     p.duration(20 * time.Second),
		TickInterval: 2 * time.Second,
		Power:        p.power(5),
		MaxStacks:    2,
		Stacking:     StackMerge,
		Refreshes:    true,
		Hooks: Hooks{
			OnActivate: func(ctx context.Context, inst Instance, t *Target) error {
				_, err := t.AdjustStress(ctx, inst.Potency())
				return err
			},
			OnTick: func(ctx context.Context, inst Instance, t *Target) error {
				if _, err := t.AdjustStress(ctx, inst.Potency()); err != nil {
					return err
				}
				_, err := t.AdjustSanity(ctx, -inst.StackCount)
				return err
			},
		},
	}
}

// Focus lowers stress once on activation. It cannot be re-applied while active.
func Focus(p Params) Definition {
	return Definition{
		Name:        "focus",
		Description: "A calm, clear mind.",
		Kind:        Buff,
		Duration:    p.duration(30 * time.Second),
		Power:       p.power(10),
		Unique:      true,
		Hooks: Hooks{
			OnActivate: func(ctx context.Context, inst Instance, t *Target) error {
				_, err := t.AdjustStress(ctx, -inst.Potency())
				return err
			},
		},
	}
}
