// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memstore is an in-process world.Store. Entities are copied on the
// way in and out so callers never share state with the store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/holomush/simcore/internal/world"
)

// Store is a mutex-guarded in-memory world store.
type Store struct {
	mu         sync.RWMutex
	characters map[string]*world.Character
	items      map[string]*world.Item
	scenes     map[string]*world.Scene
	memories   map[string][]*world.Memory
}

var _ world.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		characters: make(map[string]*world.Character),
		items:      make(map[string]*world.Item),
		scenes:     make(map[string]*world.Scene),
		memories:   make(map[string][]*world.Memory),
	}
}

// GetCharacterByID implements world.CharacterStore.
func (s *Store) GetCharacterByID(_ context.Context, id string) (*world.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.characters[id]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

// CreateCharacter implements world.CharacterStore.
func (s *Store) CreateCharacter(_ context.Context, c *world.Character) error {
	if err := c.Validate(); err != nil {
		return world.Invalid(world.TypeCharacter, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[c.ID] = c.Clone()
	return nil
}

// UpdateCharacterHealth implements world.CharacterStore.
func (s *Store) UpdateCharacterHealth(_ context.Context, id string, health int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[id]
	if !ok {
		return world.NotFound(world.TypeCharacter, id)
	}
	c.Health = world.ClampStat(health)
	return nil
}

// UpdateCharacterMentalState implements world.CharacterStore.
func (s *Store) UpdateCharacterMentalState(_ context.Context, id string, mental world.Mental) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[id]
	if !ok {
		return world.NotFound(world.TypeCharacter, id)
	}
	c.Mental = world.Mental{
		Sanity: world.ClampStat(mental.Sanity),
		Stress: world.ClampStat(mental.Stress),
	}
	return nil
}

// ListCharacters implements world.CharacterStore.
func (s *Store) ListCharacters(_ context.Context) ([]*world.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*world.Character, 0, len(s.characters))
	for _, c := range s.characters {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetItemByID implements world.ItemStore.
func (s *Store) GetItemByID(_ context.Context, id string) (*world.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	return item.Clone(), nil
}

// CreateItem implements world.ItemStore.
func (s *Store) CreateItem(_ context.Context, item *world.Item) error {
	if err := world.ValidateName(item.Name); err != nil {
		return world.Invalid(world.TypeItem, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item.Clone()
	return nil
}

// DeleteItem implements world.ItemStore.
func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return world.NotFound(world.TypeItem, id)
	}
	delete(s.items, id)
	return nil
}

// ListItemsByOwner implements world.ItemStore.
func (s *Store) ListItemsByOwner(_ context.Context, ownerID string) ([]*world.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*world.Item, 0)
	for _, item := range s.items {
		if item.OwnerID == ownerID {
			out = append(out, item.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetSceneByID implements world.SceneStore.
func (s *Store) GetSceneByID(_ context.Context, id string) (*world.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scene, ok := s.scenes[id]
	if !ok {
		return nil, nil
	}
	cp := *scene
	return &cp, nil
}

// CreateScene implements world.SceneStore.
func (s *Store) CreateScene(_ context.Context, scene *world.Scene) error {
	if err := world.ValidateName(scene.Name); err != nil {
		return world.Invalid(world.TypeScene, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *scene
	s.scenes[scene.ID] = &cp
	return nil
}

// MoveCharacter implements world.SceneStore.
func (s *Store) MoveCharacter(_ context.Context, characterID, sceneID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.characters[characterID]
	if !ok {
		return world.NotFound(world.TypeCharacter, characterID)
	}
	if _, ok := s.scenes[sceneID]; !ok {
		return world.NotFound(world.TypeScene, sceneID)
	}
	c.SceneID = sceneID
	return nil
}

// AddActionMemory implements world.MemoryService.
func (s *Store) AddActionMemory(ctx context.Context, characterID, content string) (*world.Memory, error) {
	return s.addMemory(ctx, characterID, world.MemoryAction, content)
}

// AddLongMemory implements world.MemoryService.
func (s *Store) AddLongMemory(ctx context.Context, characterID, content string) (*world.Memory, error) {
	return s.addMemory(ctx, characterID, world.MemoryLong, content)
}

func (s *Store) addMemory(_ context.Context, characterID string, kind world.MemoryKind, content string) (*world.Memory, error) {
	m, err := world.NewMemory(characterID, kind, content)
	if err != nil {
		return nil, world.Invalid("memory", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.characters[characterID]; !ok {
		return nil, world.NotFound(world.TypeCharacter, characterID)
	}
	s.memories[characterID] = append(s.memories[characterID], m)
	cp := *m
	return &cp, nil
}

// ListMemories implements world.MemoryService.
func (s *Store) ListMemories(_ context.Context, characterID string, limit int) ([]*world.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.memories[characterID]
	out := make([]*world.Memory, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Close implements world.Store.
func (s *Store) Close() error { return nil }
