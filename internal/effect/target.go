// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package effect

import (
	"context"

	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/internal/world"
)

// Publisher is the part of the event bus the engine needs.
type Publisher interface {
	Publish(ctx context.Context, payload eventbus.Payload)
}

// Target is the character a hook acts on. It holds only the character id and
// re-fetches the character for every mutation; all mutators clamp to 0-100.
type Target struct {
	CharacterID string

	store world.CharacterStore
	bus   Publisher
	cause string
}

// NewTarget creates a target outside a hook. cause is reported in change events;
// bus may be nil.
func NewTarget(characterID string, store world.CharacterStore, bus Publisher, cause string) *Target {
	return &Target{CharacterID: characterID, store: store, bus: bus, cause: cause}
}

// Character fetches the current character state.
func (t *Target) Character(ctx context.Context) (*world.Character, error) {
	c, err := t.store.GetCharacterByID(ctx, t.CharacterID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCharacterNotFound(t.CharacterID)
	}
	return c, nil
}

// AdjustHealth adds delta to health and returns the clamped result.
func (t *Target) AdjustHealth(ctx context.Context, delta int) (int, error) {
	c, err := t.Character(ctx)
	if err != nil {
		return 0, err
	}
	prev := c.Health
	next := world.ClampStat(prev + delta)
	if next == prev {
		return next, nil
	}
	if err := t.store.UpdateCharacterHealth(ctx, t.CharacterID, next); err != nil {
		return prev, err
	}
	t.publish(ctx, eventbus.CharacterHealthChanged{
		CharacterID: t.CharacterID,
		Previous:    prev,
		Current:     next,
		Cause:       t.cause,
	})
	return next, nil
}

// AdjustSanity adds delta to sanity and returns the clamped result.
func (t *Target) AdjustSanity(ctx context.Context, delta int) (int, error) {
	return t.adjustMental(ctx, "sanity", delta)
}

// AdjustStress adds delta to stress and returns the clamped result.
func (t *Target) AdjustStress(ctx context.Context, delta int) (int, error) {
	return t.adjustMental(ctx, "stress", delta)
}

func (t *Target) adjustMental(ctx context.Context, field string, delta int) (int, error) {
	c, err := t.Character(ctx)
	if err != nil {
		return 0, err
	}
	mental := c.Mental
	stat := &mental.Sanity
	if field == "stress" {
		stat = &mental.Stress
	}
	prev := *stat
	*stat = world.ClampStat(prev + delta)
	if *stat == prev {
		return prev, nil
	}
	if err := t.store.UpdateCharacterMentalState(ctx, t.CharacterID, mental); err != nil {
		return prev, err
	}
	t.publish(ctx, eventbus.CharacterMentalChanged{
		CharacterID: t.CharacterID,
		Field:       field,
		Previous:    prev,
		Current:     *stat,
		Cause:       t.cause,
	})
	return *stat, nil
}

func (t *Target) publish(ctx context.Context, payload eventbus.Payload) {
	if t.bus != nil {
		t.bus.Publish(ctx, payload)
	}
}
