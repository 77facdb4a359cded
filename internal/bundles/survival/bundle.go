// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package survival is the built-in bundle of consumable items. It depends on
// core for item.use.
package survival

import (
	_ "embed"
	"log/slog"

	"github.com/holomush/simcore/internal/bundle"
	"github.com/holomush/simcore/internal/effect"
	"github.com/holomush/simcore/internal/world"
)

//go:embed bundle.yaml
var manifest []byte

// Deps are the services the bundle's modules use.
type Deps struct {
	Store     world.Store
	Effects   *effect.Storage
	Catalog   *effect.Catalog
	Bus       effect.Publisher
	Templates bundle.TemplateLookup
	Logger    *slog.Logger
}

// Bundle returns the survival bundle descriptor.
func Bundle(deps Deps) bundle.Static {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	b := &behaviors{deps: deps}
	return bundle.Static{
		Manifest: manifest,
		Modules: map[string]any{
			"commands/item.spawn":      spawnItem(deps),
			"behaviors/health-potion":  b.healthPotion(),
			"behaviors/antidote":       b.antidote(),
			"behaviors/smelling-salts": b.smellingSalts(),
			"entities/health-potion":   HealthPotion,
			"entities/antidote":        Antidote,
			"entities/smelling-salts":  SmellingSalts,
			"events/vitals":            &vitals{deps: deps},
		},
	}
}

// Item templates.
var (
	HealthPotion = bundle.EntityTemplate{
		Name:        "health-potion",
		Type:        world.TypeItem,
		Description: "A small red vial. Restores health.",
		Behaviors:   []string{"health-potion"},
		Attributes:  map[string]any{"displayName": "Health Potion"},
	}
	Antidote = bundle.EntityTemplate{
		Name:        "antidote",
		Type:        world.TypeItem,
		Description: "Bitter herbs that neutralise poison.",
		Behaviors:   []string{"antidote"},
		Attributes:  map[string]any{"displayName": "Antidote"},
	}
	SmellingSalts = bundle.EntityTemplate{
		Name:        "smelling-salts",
		Type:        world.TypeItem,
		Description: "A sharp scent that clears the head.",
		Behaviors:   []string{"smelling-salts"},
		Attributes:  map[string]any{"displayName": "Smelling Salts"},
	}
)
