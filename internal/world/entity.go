// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package world defines the simulation entities and the store contracts the
// runtime consumes.
package world

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/simcore/internal/behavior"
)

// Entity type names used as behavior registry keys.
const (
	TypeCharacter = "character"
	TypeItem      = "item"
	TypeScene     = "scene"
)

// NewID returns a new ULID string.
func NewID() string {
	return ulid.Make().String()
}

// Mental is a character's mental state. Both fields live in 0-100.
type Mental struct {
	Sanity int `json:"sanity"`
	Stress int `json:"stress"`
}

// Character is a simulated character.
type Character struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Health    int       `json:"health"`
	Mental    Mental    `json:"mental"`
	SceneID   string    `json:"sceneId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	behaviors *behavior.Set
}

// NewCharacter creates a healthy, calm character with a generated ID.
func NewCharacter(name string) (*Character, error) {
	c := &Character{
		ID:        NewID(),
		Name:      name,
		Health:    StatMax,
		Mental:    Mental{Sanity: StatMax, Stress: StatMin},
		CreatedAt: time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks required fields and stat ranges.
func (c *Character) Validate() error {
	if c.ID == "" {
		return &ValidationError{Field: "id", Message: "cannot be empty"}
	}
	if err := ValidateName(c.Name); err != nil {
		return err
	}
	for field, v := range map[string]int{"health": c.Health, "sanity": c.Mental.Sanity, "stress": c.Mental.Stress} {
		if v != ClampStat(v) {
			return &ValidationError{Field: field, Message: "must be between 0 and 100"}
		}
	}
	return nil
}

// Clone returns a copy without attached behaviors.
func (c *Character) Clone() *Character {
	cp := *c
	cp.behaviors = nil
	return &cp
}

func (c *Character) EntityType() string { return TypeCharacter }
func (c *Character) EntityID() string   { return c.ID }

// Behaviors returns the character's behavior set, creating it on first use.
func (c *Character) Behaviors() *behavior.Set {
	if c.behaviors == nil {
		c.behaviors = behavior.NewSet(TypeCharacter, c.ID)
	}
	return c.behaviors
}

// ExecuteBehavior runs an attached behavior.
func (c *Character) ExecuteBehavior(ctx context.Context, name string, args ...any) (any, error) {
	return c.Behaviors().Execute(ctx, name, args...)
}

// Item is an object a character can carry and use. Template names the entity
// template whose behaviors are attached when the item is used.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Template  string    `json:"template"`
	OwnerID   string    `json:"ownerId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	behaviors *behavior.Set
}

// NewItem creates an item from a template.
func NewItem(name, template, ownerID string) (*Item, error) {
	i := &Item{
		ID:        NewID(),
		Name:      name,
		Template:  template,
		OwnerID:   ownerID,
		CreatedAt: time.Now().UTC(),
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if template == "" {
		return nil, &ValidationError{Field: "template", Message: "cannot be empty"}
	}
	return i, nil
}

// Clone returns a copy without attached behaviors.
func (i *Item) Clone() *Item {
	cp := *i
	cp.behaviors = nil
	return &cp
}

func (i *Item) EntityType() string { return TypeItem }
func (i *Item) EntityID() string   { return i.ID }

// Behaviors returns the item's behavior set, creating it on first use.
func (i *Item) Behaviors() *behavior.Set {
	if i.behaviors == nil {
		i.behaviors = behavior.NewSet(TypeItem, i.ID)
	}
	return i.behaviors
}

// ExecuteBehavior runs an attached behavior.
func (i *Item) ExecuteBehavior(ctx context.Context, name string, args ...any) (any, error) {
	return i.Behaviors().Execute(ctx, name, args...)
}

// Scene is a place characters occupy.
type Scene struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewScene creates a scene with a generated ID.
func NewScene(name, description string) (*Scene, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return &Scene{ID: NewID(), Name: name, Description: description, CreatedAt: time.Now().UTC()}, nil
}

// MemoryKind distinguishes short action logs from long-term memories.
type MemoryKind string

// Memory kinds.
const (
	MemoryAction MemoryKind = "action"
	MemoryLong   MemoryKind = "long"
)

// Memory is a recorded character memory.
type Memory struct {
	ID          string     `json:"id"`
	CharacterID string     `json:"characterId"`
	Kind        MemoryKind `json:"kind"`
	Content     string     `json:"content"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// NewMemory validates and builds a memory.
func NewMemory(characterID string, kind MemoryKind, content string) (*Memory, error) {
	if characterID == "" {
		return nil, &ValidationError{Field: "character_id", Message: "cannot be empty"}
	}
	if kind != MemoryAction && kind != MemoryLong {
		return nil, &ValidationError{Field: "kind", Message: "must be 'action' or 'long'"}
	}
	if err := ValidateContent(content); err != nil {
		return nil, err
	}
	return &Memory{
		ID:          NewID(),
		CharacterID: characterID,
		Kind:        kind,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
