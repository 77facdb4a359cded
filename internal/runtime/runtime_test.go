// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package runtime_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/simcore/internal/command"
	"github.com/holomush/simcore/internal/config"
	"github.com/holomush/simcore/internal/effect"
	"github.com/holomush/simcore/internal/runtime"
	"github.com/holomush/simcore/internal/world"
)

var examplesDir = filepath.Join("..", "..", "bundles")

func newRuntime(t *testing.T, mutate func(*config.Config)) (*runtime.Runtime, *clockwork.FakeClock) {
	t.Helper()
	cfg, err := config.Load(nil, "")
	require.NoError(t, err)
	cfg.Bundles.Dir = examplesDir
	cfg.Access.Grants = map[string][]string{"admin": {"**"}}
	if mutate != nil {
		mutate(cfg)
	}

	clock := clockwork.NewFakeClock()
	rt, err := runtime.New(context.Background(), runtime.Options{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt, clock
}

func admin(rt *runtime.Runtime, tool string, args command.Args) command.Result {
	return rt.Call(context.Background(), tool, args, command.CallContext{CallerID: "admin"})
}

func TestBoot_LoadsConfiguredOrder(t *testing.T) {
	rt, _ := newRuntime(t, nil)
	assert.False(t, rt.Ready())

	require.NoError(t, rt.Boot(context.Background()))
	assert.True(t, rt.Ready())
	assert.Equal(t, []string{"core", "survival", "access"}, rt.Loader.Order())
}

func TestBoot_StopsAtMissingBundle(t *testing.T) {
	rt, _ := newRuntime(t, func(c *config.Config) { c.Bundles.Order = []string{"core", "nowhere", "survival"} })

	err := rt.Boot(context.Background())
	require.Error(t, err)
	assert.False(t, rt.Ready())
	assert.Equal(t, []string{"core"}, rt.Loader.Order())
}

func TestResolve(t *testing.T) {
	rt, _ := newRuntime(t, nil)

	assert.Equal(t, "core", rt.Resolve("core"))
	assert.Equal(t, filepath.Join(examplesDir, "campfire"), rt.Resolve("campfire"))
	assert.Equal(t, "/srv/bundles/x", rt.Resolve("/srv/bundles/x"))
}

func TestCall_CapabilityChecks(t *testing.T) {
	rt, _ := newRuntime(t, nil)
	require.NoError(t, rt.Boot(context.Background()))
	ctx := context.Background()

	denied := rt.Call(ctx, "character.create", command.Args{"name": "Mara"}, command.CallContext{CallerID: "guest"})
	assert.Equal(t, "Permission denied: missing capability characters.create", denied.Error)

	held := rt.Call(ctx, "character.create", command.Args{"name": "Mara"},
		command.CallContext{CallerID: "guest", Capabilities: []string{"characters.*"}})
	assert.True(t, held.Success, held.Error)

	open := rt.Call(ctx, "effect.list", nil, command.CallContext{CallerID: "guest"})
	assert.True(t, open.Success)

	unknown := rt.Call(ctx, "fly", nil, command.CallContext{})
	assert.Equal(t, "Unknown tool: fly", unknown.Error)
}

func TestPoisonRunsToExpiry(t *testing.T) {
	rt, clock := newRuntime(t, nil)
	require.NoError(t, rt.Boot(context.Background()))
	ctx := context.Background()

	created := admin(rt, "character.create", command.Args{"name": "Mara"})
	require.True(t, created.Success, created.Error)
	charID := created.Payload["character"].(*world.Character).ID

	applied := admin(rt, "effect.apply", command.Args{"characterId": charID, "effect": "poison"})
	require.True(t, applied.Success, applied.Error)

	health := func() int {
		c, err := rt.Store.GetCharacterByID(ctx, charID)
		require.NoError(t, err)
		return c.Health
	}

	clock.Advance(3 * time.Second)
	rt.Effects.ProcessAll(ctx, clock.Now())
	assert.Equal(t, 94, health())

	clock.Advance(7 * time.Second)
	rt.Effects.ProcessAll(ctx, clock.Now())
	assert.Equal(t, 80, health())
	assert.False(t, rt.Effects.Get(charID).Has("poison"))

	memories, err := rt.Store.ListMemories(ctx, charID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, memories)
	assert.Equal(t, "poison wore off.", memories[0].Content)
}

func TestRun_SchedulerStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rt, clock := newRuntime(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	waitCtx, stop := context.WithTimeout(ctx, 2*time.Second)
	defer stop()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2), "both tickers armed")
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestAdminTools_Bundles(t *testing.T) {
	rt, _ := newRuntime(t, nil)
	require.NoError(t, rt.Boot(context.Background()))

	listed := admin(rt, "bundles.list", nil)
	require.True(t, listed.Success)
	infos := listed.Payload["bundles"].([]runtime.BundleInfo)
	require.Len(t, infos, 3)
	assert.Equal(t, "core", infos[0].Name)
	assert.Contains(t, infos[0].Commands, "effect.apply")
	assert.Equal(t, []string{"core@^1.0.0"}, infos[1].Dependencies)

	guest := rt.Call(context.Background(), "bundles.unload", command.Args{"name": "survival"}, command.CallContext{CallerID: "guest"})
	assert.Equal(t, "Permission denied: missing capability admin.bundles", guest.Error)

	blocked := admin(rt, "bundles.unload", command.Args{"name": "core"})
	assert.False(t, blocked.Success)
	assert.Contains(t, blocked.Error, "survival")

	missing := admin(rt, "bundles.load", command.Args{"name": "nowhere"})
	assert.False(t, missing.Success)

	usage := admin(rt, "bundles.load", nil)
	assert.Equal(t, "Usage: bundles.load {name}", usage.Error)
}

func TestAdminTools_LoadsLuaBundle(t *testing.T) {
	rt, _ := newRuntime(t, nil)
	require.NoError(t, rt.Boot(context.Background()))

	loaded := admin(rt, "bundles.load", command.Args{"name": "campfire"})
	require.True(t, loaded.Success, loaded.Error)
	assert.Equal(t, "campfire", loaded.Payload["bundle"])

	story := admin(rt, "campfire.story", command.Args{"index": 2})
	require.True(t, story.Success, story.Error)
	assert.Equal(t, "the fox that borrowed the moon", story.Payload["story"])
	assert.Len(t, story.Payload["id"], 26)

	none := admin(rt, "campfire.story", command.Args{"index": 9})
	assert.Equal(t, "No story number 9.", none.Error)

	created := admin(rt, "character.create", command.Args{"name": "Mara"})
	charID := created.Payload["character"].(*world.Character).ID
	spawned := admin(rt, "item.spawn", command.Args{"template": "torch", "ownerId": charID})
	require.True(t, spawned.Success, spawned.Error)
	torch := spawned.Payload["item"].(*world.Item)
	assert.Equal(t, "Torch", torch.Name)

	used := admin(rt, "item.use", command.Args{"characterId": charID, "itemId": torch.ID})
	require.True(t, used.Success, used.Error)
	assert.Equal(t, map[string]any{"item": torch.ID, "warmed": charID, "consumed": false}, used.Payload["result"])

	unloaded := admin(rt, "bundles.unload", command.Args{"name": "campfire"})
	require.True(t, unloaded.Success, unloaded.Error)
	assert.Equal(t, 0, rt.Bus.ListenerCount("campfire.story_told"))
}

func TestAdminTools_Effects(t *testing.T) {
	rt, _ := newRuntime(t, nil)
	require.NoError(t, rt.Boot(context.Background()))

	created := admin(rt, "character.create", command.Args{"name": "Mara"})
	charID := created.Payload["character"].(*world.Character).ID
	admin(rt, "effect.apply", command.Args{"characterId": charID, "effect": "regeneration"})

	all := admin(rt, "effects.list", nil)
	require.True(t, all.Success)
	assert.Equal(t, 1, all.Payload["active"])
	byChar := all.Payload["effects"].(map[string][]effect.Snapshot)
	require.Len(t, byChar[charID], 1)
	assert.Equal(t, "regeneration", byChar[charID][0].Name)

	one := admin(rt, "effects.list", command.Args{"characterId": "ghost"})
	assert.Equal(t, map[string][]effect.Snapshot{"ghost": {}}, one.Payload["effects"])
}

func TestNew_SQLiteStore(t *testing.T) {
	rt, _ := newRuntime(t, func(c *config.Config) {
		c.Store.Driver = config.DriverSQLite
		c.Store.Path = filepath.Join(t.TempDir(), "world.db")
	})
	require.NoError(t, rt.Boot(context.Background()))

	created := admin(rt, "character.create", command.Args{"name": "Mara"})
	require.True(t, created.Success, created.Error)
	charID := created.Payload["character"].(*world.Character).ID

	stored, err := rt.Store.GetCharacterByID(context.Background(), charID)
	require.NoError(t, err)
	assert.Equal(t, "Mara", stored.Name)
}
