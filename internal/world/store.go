// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package world

import "context"

// CharacterStore manages character persistence.
type CharacterStore interface {
	// GetCharacterByID returns nil, nil when the character does not exist.
	GetCharacterByID(ctx context.Context, id string) (*Character, error)

	// CreateCharacter persists a new character.
	CreateCharacter(ctx context.Context, c *Character) error

	// UpdateCharacterHealth writes health, already clamped by the caller.
	UpdateCharacterHealth(ctx context.Context, id string, health int) error

	// UpdateCharacterMentalState writes sanity and stress.
	UpdateCharacterMentalState(ctx context.Context, id string, mental Mental) error

	// ListCharacters returns every character ordered by name.
	ListCharacters(ctx context.Context) ([]*Character, error)
}

// ItemStore manages item persistence.
type ItemStore interface {
	// GetItemByID returns nil, nil when the item does not exist.
	GetItemByID(ctx context.Context, id string) (*Item, error)
	CreateItem(ctx context.Context, item *Item) error
	DeleteItem(ctx context.Context, id string) error
	ListItemsByOwner(ctx context.Context, ownerID string) ([]*Item, error)
}

// SceneStore manages scenes and character placement.
type SceneStore interface {
	// GetSceneByID returns nil, nil when the scene does not exist.
	GetSceneByID(ctx context.Context, id string) (*Scene, error)
	CreateScene(ctx context.Context, scene *Scene) error
	MoveCharacter(ctx context.Context, characterID, sceneID string) error
}

// MemoryService records character memories. Bundle listeners call it
// fire-and-forget.
type MemoryService interface {
	AddActionMemory(ctx context.Context, characterID, content string) (*Memory, error)
	AddLongMemory(ctx context.Context, characterID, content string) (*Memory, error)
	// ListMemories returns the newest memories first, at most limit (0 = all).
	ListMemories(ctx context.Context, characterID string, limit int) ([]*Memory, error)
}

// Store is the complete persistence surface used by the runtime.
type Store interface {
	CharacterStore
	ItemStore
	SceneStore
	MemoryService
	Close() error
}
