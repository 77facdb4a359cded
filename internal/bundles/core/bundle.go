// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package core is the built-in bundle for characters, effects and item use.
package core

import (
	"context"
	_ "embed"
	"log/slog"

	"github.com/holomush/simcore/internal/behavior"
	"github.com/holomush/simcore/internal/bundle"
	"github.com/holomush/simcore/internal/effect"
	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/internal/world"
)

//go:embed bundle.yaml
var manifest []byte

// Publisher is the part of the event bus the bundle publishes through.
type Publisher interface {
	Publish(ctx context.Context, payload eventbus.Payload)
}

// Deps are the services the bundle's modules use.
type Deps struct {
	Store     world.Store
	Effects   *effect.Storage
	Catalog   *effect.Catalog
	Behaviors *behavior.Registry
	Bus       Publisher
	Templates bundle.TemplateLookup
	Logger    *slog.Logger
}

// Bundle returns the core bundle descriptor.
func Bundle(deps Deps) bundle.Static {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	c := &commands{deps: deps}
	return bundle.Static{
		Manifest: manifest,
		Modules: map[string]any{
			"commands/character.create": c.createCharacter(),
			"commands/character.status": c.characterStatus(),
			"commands/effect.apply":     c.applyEffect(),
			"commands/effect.remove":    c.removeEffect(),
			"commands/effect.list":      c.listEffects(),
			"commands/item.use":         c.useItem(),
			"events/debug-log":          bundle.EventFunc(debugLog(deps.Logger)),
			"events/memories":           &memoryWriter{memories: deps.Store, logger: deps.Logger},
		},
	}
}
