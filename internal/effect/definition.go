// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package effect implements timed buffs and debuffs on characters: stacking,
// periodic ticks, expiry, and the sweep scheduler that drives them.
package effect

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Kind is buff or debuff.
type Kind string

// Effect kinds.
const (
	Buff   Kind = "buff"
	Debuff Kind = "debuff"
)

// Stacking selects how repeated applications of a non-unique effect combine.
type Stacking int

const (
	// StackSeparate creates a new instance per application. Each instance ticks
	// on its own with the definition's Power.
	StackSeparate Stacking = iota
	// StackMerge keeps one instance and increments its StackCount, so its
	// Potency scales linearly.
	StackMerge
)

func (s Stacking) String() string {
	if s == StackMerge {
		return "merge"
	}
	return "separate"
}

// Hook is a lifecycle callback. inst is a copy of the instance at the moment
// the hook fires.
type Hook func(ctx context.Context, inst Instance, target *Target) error

// Hooks groups the lifecycle callbacks of a definition. Any may be nil.
type Hooks struct {
	OnActivate   Hook
	OnTick       Hook
	OnDeactivate Hook
}

// Definition is the immutable configuration of an effect.
type Definition struct {
	Name        string
	Description string
	Kind        Kind
	// Duration of zero never expires.
	Duration time.Duration
	// TickInterval of zero never ticks.
	TickInterval time.Duration
	// MaxStacks of zero is treated as one.
	MaxStacks int
	// Unique allows at most one active instance regardless of MaxStacks.
	Unique bool
	// Refreshes resets AppliedAt when a unique effect is re-applied.
	Refreshes bool
	Power     int
	Stacking  Stacking
	Hooks     Hooks
}

// MaxStackCount returns MaxStacks with the default applied.
func (d Definition) MaxStackCount() int {
	if d.MaxStacks < 1 {
		return 1
	}
	return d.MaxStacks
}

// Validate checks the definition is usable.
func (d Definition) Validate() error {
	switch {
	case d.Name == "":
		return oops.Code(CodeInvalidEffect).With("field", "name").Errorf("effect name cannot be empty")
	case d.Kind != Buff && d.Kind != Debuff:
		return oops.Code(CodeInvalidEffect).With("effect", d.Name).With("field", "type").
			Errorf("effect type must be buff or debuff, got %q", d.Kind)
	case d.Duration < 0 || d.TickInterval < 0:
		return oops.Code(CodeInvalidEffect).With("effect", d.Name).
			Errorf("effect durations cannot be negative")
	case d.MaxStacks < 0:
		return oops.Code(CodeInvalidEffect).With("effect", d.Name).With("field", "max_stacks").
			Errorf("max stacks cannot be negative")
	}
	return nil
}

// Instance is one application of an effect on a character.
type Instance struct {
	ID          string
	CharacterID string
	Definition  Definition
	AppliedAt   time.Time
	StackCount  int
	Active      bool
	Ticks       int

	nextTick time.Time
	clock    clockwork.Clock
}

func newInstance(characterID string, def Definition, clock clockwork.Clock, now time.Time) *Instance {
	inst := &Instance{
		ID:          ulid.Make().String(),
		CharacterID: characterID,
		Definition:  def,
		StackCount:  1,
		Active:      true,
		clock:       clock,
	}
	inst.reset(now)
	return inst
}

func (i *Instance) reset(now time.Time) {
	i.AppliedAt = now
	if i.Definition.TickInterval > 0 {
		i.nextTick = now.Add(i.Definition.TickInterval)
	}
}

// Name is the definition name.
func (i Instance) Name() string { return i.Definition.Name }

// Potency is Power scaled by the stack count.
func (i Instance) Potency() int {
	return i.Definition.Power * i.StackCount
}

// ExpiresAt returns the expiry instant; ok is false for infinite effects.
func (i Instance) ExpiresAt() (at time.Time, ok bool) {
	if i.Definition.Duration <= 0 {
		return time.Time{}, false
	}
	return i.AppliedAt.Add(i.Definition.Duration), true
}

// Expired reports whether the duration has elapsed at now.
func (i Instance) Expired(now time.Time) bool {
	at, ok := i.ExpiresAt()
	return ok && !now.Before(at)
}

// Remaining returns the time left at now, floored at zero; ok is false for
// infinite effects.
func (i Instance) Remaining(now time.Time) (time.Duration, bool) {
	at, ok := i.ExpiresAt()
	if !ok {
		return 0, false
	}
	left := at.Sub(now)
	if left < 0 {
		left = 0
	}
	return left, true
}

// Snapshot is the presentation form of an instance.
type Snapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Type        Kind   `json:"type"`
	// RemainingMs is nil for effects that never expire.
	RemainingMs *int64 `json:"remainingMs"`
	StackCount  int    `json:"stackCount"`
	Potency     int    `json:"potency"`
	Ticks       int    `json:"ticks"`
}

// Snapshot captures the instance as seen at now.
func (i Instance) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		ID:          i.ID,
		Name:        i.Definition.Name,
		Description: i.Definition.Description,
		Type:        i.Definition.Kind,
		StackCount:  i.StackCount,
		Potency:     i.Potency(),
		Ticks:       i.Ticks,
	}
	if left, ok := i.Remaining(now); ok {
		ms := left.Milliseconds()
		s.RemainingMs = &ms
	}
	return s
}

// MarshalJSON renders the instance snapshot as seen by the clock of the list
// that created it. A zero Instance uses the wall clock.
func (i Instance) MarshalJSON() ([]byte, error) {
	clock := i.clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return json.Marshal(i.Snapshot(clock.Now()))
}
