// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package survival

import (
	"context"
	"fmt"

	"github.com/holomush/simcore/internal/behavior"
	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/effect"
	"github.com/holomush/simcore/internal/world"
)

// PotionHeal is the health a health potion restores.
const PotionHeal = 25

func spawnItem(deps Deps) command.Command {
	const usage = "item.spawn {template, ownerId?, name?}"
	return command.Command{
		Name:        "item.spawn",
		Description: "Create an item from an entity template.",
		Usage:       usage,
		Capability:  "items.spawn",
		Execute: func(ctx context.Context, args command.Args) (command.Result, error) {
			name, ok := args.String("template")
			if !ok {
				return command.Result{}, command.ErrInvalidArgs("item.spawn", usage)
			}
			tmpl, ok := deps.Templates(name)
			if !ok || tmpl.Type != world.TypeItem {
				return command.Failure("No item template named %s.", name), nil
			}

			owner, _ := args.String("ownerId")
			if owner != "" {
				char, err := deps.Store.GetCharacterByID(ctx, owner)
				if err != nil {
					return command.Result{}, command.WorldError("Could not load character.", err)
				}
				if char == nil {
					return command.Failure("Character %s not found.", owner), nil
				}
			}

			display, ok := args.String("name")
			if !ok {
				display = displayName(tmpl.Name, tmpl.Attributes)
			}
			item, err := world.NewItem(display, tmpl.Name, owner)
			if err != nil {
				return command.Failure("Invalid item: %s", err.Error()), nil
			}
			if err := deps.Store.CreateItem(ctx, item); err != nil {
				return command.Result{}, command.WorldError("Could not create item.", err)
			}
			return command.Success(map[string]any{"item": item}), nil
		},
	}
}

func displayName(fallback string, attrs map[string]any) string {
	if s, ok := attrs["displayName"].(string); ok && s != "" {
		return s
	}
	return fallback
}

type behaviors struct {
	deps Deps
}

// user returns the character id item.use passes as the first argument.
func user(item behavior.Entity, args []any) (string, error) {
	if len(args) > 0 {
		if id, ok := args[0].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%s %s needs the using character's id", item.EntityType(), item.EntityID())
}

func (b *behaviors) healthPotion() behavior.Definition {
	return behavior.Definition{
		Name:        "health-potion",
		Description: fmt.Sprintf("Restore %d health.", PotionHeal),
		Execute: func(ctx context.Context, item behavior.Entity, args ...any) (any, error) {
			charID, err := user(item, args)
			if err != nil {
				return nil, err
			}
			target := effect.NewTarget(charID, b.deps.Store, b.deps.Bus, "health-potion")
			before, err := target.Character(ctx)
			if err != nil {
				return nil, err
			}
			health, err := target.AdjustHealth(ctx, PotionHeal)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"healed":   health - before.Health,
				"health":   health,
				"consumed": true,
			}, nil
		},
	}
}

func (b *behaviors) antidote() behavior.Definition {
	return behavior.Definition{
		Name:        "antidote",
		Description: "Cure every poison.",
		Execute: func(ctx context.Context, item behavior.Entity, args ...any) (any, error) {
			charID, err := user(item, args)
			if err != nil {
				return nil, err
			}
			cured := 0
			if list, ok := b.deps.Effects.Lookup(charID); ok {
				cured = list.RemoveByName(ctx, "poison")
			}
			return map[string]any{"cured": cured, "consumed": cured > 0}, nil
		},
	}
}

func (b *behaviors) smellingSalts() behavior.Definition {
	return behavior.Definition{
		Name:        "smelling-salts",
		Description: "Apply focus.",
		Execute: func(ctx context.Context, item behavior.Entity, args ...any) (any, error) {
			charID, err := user(item, args)
			if err != nil {
				return nil, err
			}
			def, err := b.deps.Catalog.Definition("focus", effect.Params{})
			if err != nil {
				return nil, err
			}
			_, applied := b.deps.Effects.Get(charID).Add(ctx, def)
			return map[string]any{"applied": applied, "consumed": applied}, nil
		},
	}
}
