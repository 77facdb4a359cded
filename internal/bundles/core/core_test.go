// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package core_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/simcore/internal/behavior"
	"github.com/holomush/simcore/internal/bundle"
	"github.com/holomush/simcore/internal/bundles/core"
	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/effect"
	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/internal/world"
	"github.com/holomush/simcore/internal/world/memstore"
	"github.com/holomush/simcore/pkg/errutil"
)

type harness struct {
	ctx       context.Context
	bus       *eventbus.Bus
	store     *memstore.Store
	effects   *effect.Storage
	behaviors *behavior.Registry
	commands  *command.Registry
	loader    *bundle.Loader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		ctx:       context.Background(),
		bus:       eventbus.New(eventbus.WithLogger(logger)),
		store:     memstore.New(),
		behaviors: behavior.NewRegistry(behavior.WithLogger(logger)),
	}
	h.commands = command.NewRegistry(command.WithRegistryLogger(logger))
	h.effects = effect.NewStorage(h.store,
		effect.WithClock(clockwork.NewFakeClock()),
		effect.WithPublisher(h.bus),
		effect.WithLogger(logger))
	h.loader = bundle.NewLoader(h.bus, h.behaviors, h.commands, bundle.WithLogger(logger))

	_, err := h.loader.Load(h.ctx, core.Bundle(core.Deps{
		Store:     h.store,
		Effects:   h.effects,
		Catalog:   effect.NewBuiltinCatalog(),
		Behaviors: h.behaviors,
		Bus:       h.bus,
		Templates: h.loader.EntityTemplate,
		Logger:    logger,
	}))
	require.NoError(t, err)
	return h
}

func (h *harness) run(t *testing.T, name string, args command.Args) command.Result {
	t.Helper()
	result, err := h.commands.Execute(h.ctx, name, args)
	require.NoError(t, err)
	return result
}

func (h *harness) character(t *testing.T, name string) *world.Character {
	t.Helper()
	result := h.run(t, "character.create", command.Args{"name": name})
	require.True(t, result.Success, result.Error)
	char, ok := result.Payload["character"].(*world.Character)
	require.True(t, ok)
	return char
}

func (h *harness) memories(t *testing.T, characterID string) []string {
	t.Helper()
	mems, err := h.store.ListMemories(h.ctx, characterID, 0)
	require.NoError(t, err)
	out := make([]string, 0, len(mems))
	for _, m := range mems {
		out = append(out, string(m.Kind)+": "+m.Content)
	}
	return out
}

func TestBundle_RegistersCommandsWithCapabilities(t *testing.T) {
	h := newHarness(t)

	names := make(map[string]string)
	for _, tool := range h.commands.Tools() {
		names[tool.Name] = tool.Capability
		assert.Equal(t, "core", tool.Source)
	}
	assert.Equal(t, map[string]string{
		"character.create": "characters.create",
		"character.status": "",
		"effect.apply":     "effects.apply",
		"effect.remove":    "effects.remove",
		"effect.list":      "",
		"item.use":         "items.use",
	}, names)
	assert.True(t, h.bus.HasListeners(eventbus.Wildcard))
	assert.True(t, h.bus.HasListeners(eventbus.EventEffectApplied))
}

func TestCharacterCreate_RequiresName(t *testing.T) {
	h := newHarness(t)

	_, err := h.commands.Execute(h.ctx, "character.create", command.Args{})
	errutil.AssertErrorCode(t, err, command.CodeInvalidArgs)
	assert.Equal(t, "Usage: character.create {name}", command.Message(err))
}

func TestCharacterCreate_RejectsInvalidName(t *testing.T) {
	h := newHarness(t)

	result := h.run(t, "character.create", command.Args{"name": "bad\x07name"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Invalid character")
}

func TestCharacterStatus(t *testing.T) {
	h := newHarness(t)
	char := h.character(t, "Mara")

	result := h.run(t, "character.status", command.Args{"characterId": char.ID})
	require.True(t, result.Success)
	got := result.Payload["character"].(*world.Character)
	assert.Equal(t, world.StatMax, got.Health)
	assert.Empty(t, result.Payload["effects"])

	missing := h.run(t, "character.status", command.Args{"characterId": "nobody"})
	assert.False(t, missing.Success)
	assert.Equal(t, "Character nobody not found.", missing.Error)
}

func TestEffectApply_RunsActivationAndRecordsMemory(t *testing.T) {
	h := newHarness(t)
	char := h.character(t, "Mara")

	result := h.run(t, "effect.apply", command.Args{"characterId": char.ID, "effect": "panic"})
	require.True(t, result.Success, result.Error)
	snap := result.Payload["effect"].(effect.Snapshot)
	assert.Equal(t, "panic", snap.Name)
	assert.Equal(t, 5, snap.Potency)

	stored, err := h.store.GetCharacterByID(h.ctx, char.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Mental.Stress)
	assert.Equal(t, []string{"action: Came under panic."}, h.memories(t, char.ID))
}

func TestEffectApply_Overrides(t *testing.T) {
	h := newHarness(t)
	char := h.character(t, "Mara")

	result := h.run(t, "effect.apply", command.Args{
		"characterId": char.ID, "effect": "poison", "durationMs": float64(3000), "power": "7",
	})
	require.True(t, result.Success, result.Error)
	snap := result.Payload["effect"].(effect.Snapshot)
	require.NotNil(t, snap.RemainingMs)
	assert.Equal(t, int64(3000), *snap.RemainingMs)
	assert.Equal(t, 7, snap.Potency)
}

func TestEffectApply_Failures(t *testing.T) {
	h := newHarness(t)
	char := h.character(t, "Mara")

	unknown := h.run(t, "effect.apply", command.Args{"characterId": char.ID, "effect": "frostbite"})
	assert.Equal(t, "Unknown effect: frostbite", unknown.Error)

	missing := h.run(t, "effect.apply", command.Args{"characterId": "ghost", "effect": "focus"})
	assert.Equal(t, "Character ghost not found.", missing.Error)

	first := h.run(t, "effect.apply", command.Args{"characterId": char.ID, "effect": "focus"})
	require.True(t, first.Success)
	again := h.run(t, "effect.apply", command.Args{"characterId": char.ID, "effect": "focus"})
	assert.False(t, again.Success)
	assert.Equal(t, "Effect focus cannot be applied again right now.", again.Error)

	_, err := h.commands.Execute(h.ctx, "effect.apply", command.Args{"characterId": char.ID})
	errutil.AssertErrorCode(t, err, command.CodeInvalidArgs)

	for _, ms := range []any{1e300, float64(1 << 62)} {
		_, err = h.commands.Execute(h.ctx, "effect.apply", command.Args{
			"characterId": char.ID, "effect": "poison", "durationMs": ms,
		})
		errutil.AssertErrorCode(t, err, command.CodeInvalidArgs)
	}
	assert.False(t, h.effects.Get(char.ID).Has("poison"))
}

func TestEffectRemove(t *testing.T) {
	h := newHarness(t)
	char := h.character(t, "Mara")

	none := h.run(t, "effect.remove", command.Args{"characterId": char.ID, "effect": "poison"})
	assert.Equal(t, "Character "+char.ID+" has no active effects.", none.Error)

	h.run(t, "effect.apply", command.Args{"characterId": char.ID, "effect": "poison"})
	second := h.run(t, "effect.apply", command.Args{"characterId": char.ID, "effect": "poison"})
	require.True(t, second.Success)
	id := second.Payload["effect"].(effect.Snapshot).ID

	byID := h.run(t, "effect.remove", command.Args{"characterId": char.ID, "effectId": id})
	require.True(t, byID.Success)
	assert.Equal(t, 1, byID.Payload["removed"])

	byName := h.run(t, "effect.remove", command.Args{"characterId": char.ID, "effect": "poison"})
	require.True(t, byName.Success)
	assert.Equal(t, 1, byName.Payload["removed"])

	nothing := h.run(t, "effect.remove", command.Args{"characterId": char.ID, "effect": "poison"})
	assert.Equal(t, "No matching effect is active.", nothing.Error)

	assert.Contains(t, h.memories(t, char.ID), "action: poison was cured.")
}

func TestEffectList(t *testing.T) {
	h := newHarness(t)
	char := h.character(t, "Mara")

	available := h.run(t, "effect.list", nil)
	assert.Equal(t, []string{"focus", "panic", "poison", "regeneration"}, available.Payload["available"])

	empty := h.run(t, "effect.list", command.Args{"characterId": char.ID})
	assert.Empty(t, empty.Payload["effects"])

	h.run(t, "effect.apply", command.Args{"characterId": char.ID, "effect": "regeneration"})
	listed := h.run(t, "effect.list", command.Args{"characterId": char.ID})
	snaps := listed.Payload["effects"].([]effect.Snapshot)
	require.Len(t, snaps, 1)
	assert.Equal(t, "regeneration", snaps[0].Name)
}

const kitManifest = `
name: kit
version: 0.1.0
behaviors:
  item: [behaviors/patch, behaviors/inspect]
entities: [entities/bandage]
`

func loadKit(t *testing.T, h *harness) {
	t.Helper()
	_, err := h.loader.Load(h.ctx, bundle.Static{
		Manifest: []byte(kitManifest),
		Modules: map[string]any{
			"entities/bandage": bundle.EntityTemplate{
				Name: "bandage", Type: world.TypeItem, Behaviors: []string{"patch", "inspect"},
			},
			"behaviors/patch": behavior.Definition{
				Name: "patch",
				Execute: func(ctx context.Context, _ behavior.Entity, args ...any) (any, error) {
					target := effect.NewTarget(args[0].(string), h.store, h.bus, "bandage")
					health, err := target.AdjustHealth(ctx, 10)
					return map[string]any{"health": health, "consumed": true}, err
				},
			},
			"behaviors/inspect": behavior.Definition{
				Name: "inspect",
				Execute: func(context.Context, behavior.Entity, ...any) (any, error) {
					return "a clean bandage", nil
				},
			},
		},
	})
	require.NoError(t, err)
}

func TestItemUse_ConsumesItem(t *testing.T) {
	h := newHarness(t)
	loadKit(t, h)
	char := h.character(t, "Mara")
	require.NoError(t, h.store.UpdateCharacterHealth(h.ctx, char.ID, 50))

	item, err := world.NewItem("Bandage", "bandage", char.ID)
	require.NoError(t, err)
	require.NoError(t, h.store.CreateItem(h.ctx, item))

	var used []eventbus.ItemUsed
	eventbus.Subscribe(h.bus, func(_ context.Context, p eventbus.ItemUsed) error {
		used = append(used, p)
		return nil
	})

	result := h.run(t, "item.use", command.Args{"characterId": char.ID, "itemId": item.ID})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "patch", result.Payload["behavior"])
	assert.Equal(t, true, result.Payload["consumed"])

	stored, err := h.store.GetCharacterByID(h.ctx, char.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, stored.Health)

	gone, err := h.store.GetItemByID(h.ctx, item.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	require.Len(t, used, 1)
	assert.Equal(t, "bandage", used[0].Template)
}

func TestItemUse_NamedBehaviorKeepsItem(t *testing.T) {
	h := newHarness(t)
	loadKit(t, h)
	char := h.character(t, "Mara")
	item, err := world.NewItem("Bandage", "bandage", char.ID)
	require.NoError(t, err)
	require.NoError(t, h.store.CreateItem(h.ctx, item))

	result := h.run(t, "item.use", command.Args{"characterId": char.ID, "itemId": item.ID, "behavior": "inspect"})
	require.True(t, result.Success, result.Error)
	assert.Equal(t, "a clean bandage", result.Payload["result"])
	assert.Equal(t, false, result.Payload["consumed"])

	unknown := h.run(t, "item.use", command.Args{"characterId": char.ID, "itemId": item.ID, "behavior": "burn"})
	assert.Equal(t, "Bandage cannot burn.", unknown.Error)
}

func TestItemUse_Failures(t *testing.T) {
	h := newHarness(t)
	loadKit(t, h)
	owner := h.character(t, "Mara")
	other := h.character(t, "Tomas")

	missing := h.run(t, "item.use", command.Args{"characterId": owner.ID, "itemId": "nothing"})
	assert.Equal(t, "Item nothing not found.", missing.Error)

	item, err := world.NewItem("Bandage", "bandage", owner.ID)
	require.NoError(t, err)
	require.NoError(t, h.store.CreateItem(h.ctx, item))
	stolen := h.run(t, "item.use", command.Args{"characterId": other.ID, "itemId": item.ID})
	assert.Equal(t, "Bandage does not belong to you.", stolen.Error)

	rock, err := world.NewItem("Rock", "rock", owner.ID)
	require.NoError(t, err)
	require.NoError(t, h.store.CreateItem(h.ctx, rock))
	inert := h.run(t, "item.use", command.Args{"characterId": owner.ID, "itemId": rock.ID})
	assert.Equal(t, "Rock cannot be used.", inert.Error)
}

func TestMemories_CollapseIsLongMemory(t *testing.T) {
	h := newHarness(t)
	char := h.character(t, "Mara")

	target := effect.NewTarget(char.ID, h.store, h.bus, "fall")
	_, err := target.AdjustHealth(h.ctx, -world.StatMax)
	require.NoError(t, err)

	assert.Equal(t, []string{"long: Collapsed from my injuries."}, h.memories(t, char.ID))
}

func TestUnload_RemovesCoreListeners(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.loader.Unload(h.ctx, "core"))
	assert.False(t, h.bus.HasListeners(eventbus.EventEffectApplied))
	assert.False(t, h.commands.Has("effect.apply"))
}
