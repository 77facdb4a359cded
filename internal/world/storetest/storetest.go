// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package storetest holds the contract tests every world.Store must pass.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/simcore/internal/world"
	"github.com/holomush/simcore/pkg/errutil"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) world.Store

// Run exercises the full world.Store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("missing character is nil without error", func(t *testing.T) {
		s := newStore(t)
		c, err := s.GetCharacterByID(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("character round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c := mustCharacter(t, "Brin")
		require.NoError(t, s.CreateCharacter(ctx, c))

		got, err := s.GetCharacterByID(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, c.Name, got.Name)
		assert.Equal(t, 100, got.Health)
		assert.Equal(t, world.Mental{Sanity: 100}, got.Mental)
	})

	t.Run("invalid character is rejected", func(t *testing.T) {
		s := newStore(t)
		c := mustCharacter(t, "Brin")
		c.Health = 250
		err := s.CreateCharacter(context.Background(), c)
		errutil.AssertErrorCode(t, err, world.CodeValidation)
	})

	t.Run("health and mental updates clamp", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c := mustCharacter(t, "Brin")
		require.NoError(t, s.CreateCharacter(ctx, c))

		require.NoError(t, s.UpdateCharacterHealth(ctx, c.ID, -10))
		require.NoError(t, s.UpdateCharacterMentalState(ctx, c.ID, world.Mental{Sanity: 140, Stress: 35}))

		got, err := s.GetCharacterByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Health)
		assert.Equal(t, world.Mental{Sanity: 100, Stress: 35}, got.Mental)
	})

	t.Run("updating a missing character is not found", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateCharacterHealth(context.Background(), "missing", 50)
		errutil.AssertErrorCode(t, err, world.CodeNotFound)
		assert.ErrorIs(t, err, world.ErrNotFound)
	})

	t.Run("list characters by name", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateCharacter(ctx, mustCharacter(t, "Zed")))
		require.NoError(t, s.CreateCharacter(ctx, mustCharacter(t, "Ada")))

		all, err := s.ListCharacters(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "Ada", all[0].Name)
		assert.Equal(t, "Zed", all[1].Name)
	})

	t.Run("item lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		owner := mustCharacter(t, "Brin")
		require.NoError(t, s.CreateCharacter(ctx, owner))

		item, err := world.NewItem("Red Potion", "health-potion", owner.ID)
		require.NoError(t, err)
		require.NoError(t, s.CreateItem(ctx, item))

		got, err := s.GetItemByID(ctx, item.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "health-potion", got.Template)

		owned, err := s.ListItemsByOwner(ctx, owner.ID)
		require.NoError(t, err)
		assert.Len(t, owned, 1)

		require.NoError(t, s.DeleteItem(ctx, item.ID))
		got, err = s.GetItemByID(ctx, item.ID)
		require.NoError(t, err)
		assert.Nil(t, got)

		err = s.DeleteItem(ctx, item.ID)
		errutil.AssertErrorCode(t, err, world.CodeNotFound)
	})

	t.Run("scenes and movement", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c := mustCharacter(t, "Brin")
		require.NoError(t, s.CreateCharacter(ctx, c))
		scene, err := world.NewScene("Harbor", "Gulls and salt.")
		require.NoError(t, err)
		require.NoError(t, s.CreateScene(ctx, scene))

		require.NoError(t, s.MoveCharacter(ctx, c.ID, scene.ID))
		got, err := s.GetCharacterByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, scene.ID, got.SceneID)

		err = s.MoveCharacter(ctx, c.ID, "nowhere")
		errutil.AssertErrorCode(t, err, world.CodeNotFound)

		missing, err := s.GetSceneByID(ctx, "nowhere")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("memories newest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		c := mustCharacter(t, "Brin")
		require.NoError(t, s.CreateCharacter(ctx, c))

		_, err := s.AddActionMemory(ctx, c.ID, "first")
		require.NoError(t, err)
		_, err = s.AddLongMemory(ctx, c.ID, "second")
		require.NoError(t, err)
		_, err = s.AddActionMemory(ctx, c.ID, "third")
		require.NoError(t, err)

		all, err := s.ListMemories(ctx, c.ID, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "third", all[0].Content)
		assert.Equal(t, world.MemoryLong, all[1].Kind)

		limited, err := s.ListMemories(ctx, c.ID, 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("memory for missing character fails", func(t *testing.T) {
		s := newStore(t)
		_, err := s.AddActionMemory(context.Background(), "missing", "hello")
		errutil.AssertErrorCode(t, err, world.CodeNotFound)
	})
}

func mustCharacter(t *testing.T, name string) *world.Character {
	t.Helper()
	c, err := world.NewCharacter(name)
	require.NoError(t, err)
	return c
}
