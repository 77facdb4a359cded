// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package core

import (
	"context"
	"math"
	"time"

	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/effect"
	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/internal/world"
)

// maxDurationMs is the longest durationMs a time.Duration can hold.
const maxDurationMs = math.MaxInt64 / int64(time.Millisecond)

type commands struct {
	deps Deps
}

// character loads a character or returns the failure envelope to send back.
func (c *commands) character(ctx context.Context, id string) (*world.Character, *command.Result, error) {
	char, err := c.deps.Store.GetCharacterByID(ctx, id)
	if err != nil {
		return nil, nil, command.WorldError("Could not load character.", err)
	}
	if char == nil {
		r := command.Failure("Character %s not found.", id)
		return nil, &r, nil
	}
	return char, nil, nil
}

func (c *commands) createCharacter() command.Command {
	const usage = "character.create {name}"
	return command.Command{
		Name:        "character.create",
		Description: "Create a character with full health and a calm mind.",
		Usage:       usage,
		Capability:  "characters.create",
		Execute: func(ctx context.Context, args command.Args) (command.Result, error) {
			name, ok := args.String("name")
			if !ok {
				return command.Result{}, command.ErrInvalidArgs("character.create", usage)
			}
			char, err := world.NewCharacter(name)
			if err != nil {
				return command.Failure("Invalid character: %s", err.Error()), nil
			}
			if err := c.deps.Store.CreateCharacter(ctx, char); err != nil {
				return command.Result{}, command.WorldError("Could not create character.", err)
			}
			return command.Success(map[string]any{"character": char}), nil
		},
	}
}

func (c *commands) characterStatus() command.Command {
	const usage = "character.status {characterId}"
	return command.Command{
		Name:        "character.status",
		Description: "Show a character's vitals and active effects.",
		Usage:       usage,
		Execute: func(ctx context.Context, args command.Args) (command.Result, error) {
			id, ok := args.String("characterId")
			if !ok {
				return command.Result{}, command.ErrInvalidArgs("character.status", usage)
			}
			char, failure, err := c.character(ctx, id)
			if err != nil || failure != nil {
				return deref(failure), err
			}
			return command.Success(map[string]any{
				"character": char,
				"effects":   c.deps.Effects.Get(id).Snapshot(),
			}), nil
		},
	}
}

func (c *commands) applyEffect() command.Command {
	const usage = "effect.apply {characterId, effect, durationMs?, power?}"
	return command.Command{
		Name:        "effect.apply",
		Description: "Apply a named effect to a character.",
		Usage:       usage,
		Capability:  "effects.apply",
		Execute: func(ctx context.Context, args command.Args) (command.Result, error) {
			id, okID := args.String("characterId")
			name, okName := args.String("effect")
			if !okID || !okName {
				return command.Result{}, command.ErrInvalidArgs("effect.apply", usage)
			}

			var params effect.Params
			if ms, ok := args.Int("durationMs"); ok && ms > 0 {
				if int64(ms) > maxDurationMs {
					return command.Result{}, command.ErrInvalidArgs("effect.apply", usage)
				}
				params.Duration = time.Duration(ms) * time.Millisecond
			}
			if power, ok := args.Int("power"); ok && power > 0 {
				params.Power = power
			}
			def, err := c.deps.Catalog.Definition(name, params)
			if err != nil {
				return command.Failure("Unknown effect: %s", name), nil
			}

			if _, failure, err := c.character(ctx, id); err != nil || failure != nil {
				return deref(failure), err
			}

			list := c.deps.Effects.Get(id)
			inst, ok := list.Add(ctx, def)
			if !ok {
				return command.Failure("Effect %s cannot be applied again right now.", name), nil
			}
			return command.Success(map[string]any{
				"effect":  inst.Snapshot(c.deps.Effects.Clock().Now()),
				"effects": list.Snapshot(),
			}), nil
		},
	}
}

func (c *commands) removeEffect() command.Command {
	const usage = "effect.remove {characterId, effect | effectId}"
	return command.Command{
		Name:        "effect.remove",
		Description: "Remove an effect from a character by name or instance id.",
		Usage:       usage,
		Capability:  "effects.remove",
		Execute: func(ctx context.Context, args command.Args) (command.Result, error) {
			id, ok := args.String("characterId")
			if !ok {
				return command.Result{}, command.ErrInvalidArgs("effect.remove", usage)
			}
			list, ok := c.deps.Effects.Lookup(id)
			if !ok {
				return command.Failure("Character %s has no active effects.", id), nil
			}

			removed := 0
			if effectID, ok := args.String("effectId"); ok {
				if list.Remove(ctx, effectID) {
					removed = 1
				}
			} else if name, ok := args.String("effect"); ok {
				removed = list.RemoveByName(ctx, name)
			} else {
				return command.Result{}, command.ErrInvalidArgs("effect.remove", usage)
			}

			if removed == 0 {
				return command.Failure("No matching effect is active."), nil
			}
			return command.Success(map[string]any{"removed": removed, "effects": list.Snapshot()}), nil
		},
	}
}

func (c *commands) listEffects() command.Command {
	const usage = "effect.list {characterId?}"
	return command.Command{
		Name:        "effect.list",
		Description: "List a character's active effects, or the effects that can be applied.",
		Usage:       usage,
		Execute: func(_ context.Context, args command.Args) (command.Result, error) {
			id, ok := args.String("characterId")
			if !ok {
				return command.Success(map[string]any{"available": c.deps.Catalog.Names()}), nil
			}
			snapshot := []effect.Snapshot{}
			if list, ok := c.deps.Effects.Lookup(id); ok {
				snapshot = list.Snapshot()
			}
			return command.Success(map[string]any{"characterId": id, "effects": snapshot}), nil
		},
	}
}

func (c *commands) useItem() command.Command {
	const usage = "item.use {characterId, itemId, behavior?}"
	return command.Command{
		Name:        "item.use",
		Description: "Use an item, running one of its behaviors on the character.",
		Usage:       usage,
		Capability:  "items.use",
		Execute: func(ctx context.Context, args command.Args) (command.Result, error) {
			charID, okChar := args.String("characterId")
			itemID, okItem := args.String("itemId")
			if !okChar || !okItem {
				return command.Result{}, command.ErrInvalidArgs("item.use", usage)
			}
			if _, failure, err := c.character(ctx, charID); err != nil || failure != nil {
				return deref(failure), err
			}

			item, err := c.deps.Store.GetItemByID(ctx, itemID)
			if err != nil {
				return command.Result{}, command.WorldError("Could not load item.", err)
			}
			if item == nil {
				return command.Failure("Item %s not found.", itemID), nil
			}
			if item.OwnerID != "" && item.OwnerID != charID {
				return command.Failure("%s does not belong to you.", item.Name), nil
			}

			var names []string
			if c.deps.Templates != nil {
				if tmpl, ok := c.deps.Templates(item.Template); ok {
					names = tmpl.Behaviors
				}
			}
			name, ok := args.String("behavior")
			if !ok {
				if len(names) == 0 {
					return command.Failure("%s cannot be used.", item.Name), nil
				}
				name = names[0]
			}
			c.deps.Behaviors.AttachAll(item, names...)
			if !item.Behaviors().Has(name) {
				return command.Failure("%s cannot %s.", item.Name, name), nil
			}

			result, err := item.ExecuteBehavior(ctx, name, charID)
			if err != nil {
				return command.Failure("%s failed: %s", item.Name, command.Message(err)), nil
			}
			c.publish(ctx, eventbus.BehaviorExecuted{
				EntityType: item.EntityType(),
				EntityID:   item.ID,
				Behavior:   name,
				Result:     result,
			})
			c.publish(ctx, eventbus.ItemUsed{
				CharacterID: charID,
				ItemID:      item.ID,
				Template:    item.Template,
				Result:      result,
			})

			consumed := false
			if m, ok := result.(map[string]any); ok && m["consumed"] == true {
				if err := c.deps.Store.DeleteItem(ctx, item.ID); err != nil {
					return command.Result{}, command.WorldError("Could not consume item.", err)
				}
				consumed = true
			}
			return command.Success(map[string]any{
				"item":     item.ID,
				"behavior": name,
				"result":   result,
				"consumed": consumed,
			}), nil
		},
	}
}

func (c *commands) publish(ctx context.Context, payload eventbus.Payload) {
	if c.deps.Bus != nil {
		c.deps.Bus.Publish(ctx, payload)
	}
}

func deref(r *command.Result) command.Result {
	if r == nil {
		return command.Result{}
	}
	return *r
}
