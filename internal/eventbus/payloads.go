// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventbus

import "time"

// Payload is implemented by every typed event payload. Implementations use value
// receivers so a zero value can report its event name.
type Payload interface {
	EventName() string
}

// Event names emitted by the runtime.
const (
	EventCommandExecuted        = "command.executed"
	EventCharacterHealthChanged = "character.health_changed"
	EventCharacterMentalChanged = "character.mental_changed"
	EventEffectApplied          = "effect.applied"
	EventEffectRefreshed        = "effect.refreshed"
	EventEffectTicked           = "effect.ticked"
	EventEffectExpired          = "effect.expired"
	EventEffectRemoved          = "effect.removed"
	EventBundleLoaded           = "bundle.loaded"
	EventBundleUnloaded         = "bundle.unloaded"
	EventBehaviorExecuted       = "behavior.executed"
	EventItemUsed               = "item.used"
	EventToolAuthorize          = "tool.authorize"
)

// CommandExecuted is published after every registry command execution.
type CommandExecuted struct {
	Command  string         `json:"command"`
	Source   string         `json:"source"`
	CallerID string         `json:"callerId"`
	Args     map[string]any `json:"args"`
	Success  bool           `json:"success"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration"`
}

func (CommandExecuted) EventName() string { return EventCommandExecuted }

// CharacterHealthChanged is published when a character's health is written.
type CharacterHealthChanged struct {
	CharacterID string `json:"characterId"`
	Previous    int    `json:"previous"`
	Current     int    `json:"current"`
	Cause       string `json:"cause,omitempty"`
}

func (CharacterHealthChanged) EventName() string { return EventCharacterHealthChanged }

// Delta is Current minus Previous.
func (p CharacterHealthChanged) Delta() int { return p.Current - p.Previous }

// CharacterMentalChanged is published when sanity or stress is written.
// Field is "sanity" or "stress".
type CharacterMentalChanged struct {
	CharacterID string `json:"characterId"`
	Field       string `json:"field"`
	Previous    int    `json:"previous"`
	Current     int    `json:"current"`
	Cause       string `json:"cause,omitempty"`
}

func (CharacterMentalChanged) EventName() string { return EventCharacterMentalChanged }

// EffectApplied is published when a new effect instance activates or an
// existing one gains a stack.
type EffectApplied struct {
	CharacterID string `json:"characterId"`
	EffectID    string `json:"effectId"`
	Effect      string `json:"effect"`
	StackCount  int    `json:"stackCount"`
}

func (EffectApplied) EventName() string { return EventEffectApplied }

// EffectRefreshed is published when a unique refreshing effect is re-applied.
type EffectRefreshed struct {
	CharacterID string `json:"characterId"`
	EffectID    string `json:"effectId"`
	Effect      string `json:"effect"`
}

func (EffectRefreshed) EventName() string { return EventEffectRefreshed }

// EffectTicked is published after each periodic tick.
type EffectTicked struct {
	CharacterID string `json:"characterId"`
	EffectID    string `json:"effectId"`
	Effect      string `json:"effect"`
	Tick        int    `json:"tick"`
}

func (EffectTicked) EventName() string { return EventEffectTicked }

// EffectExpired is published when an effect's duration elapses.
type EffectExpired struct {
	CharacterID string `json:"characterId"`
	EffectID    string `json:"effectId"`
	Effect      string `json:"effect"`
}

func (EffectExpired) EventName() string { return EventEffectExpired }

// EffectRemoved is published when an effect is removed before expiry.
type EffectRemoved struct {
	CharacterID string `json:"characterId"`
	EffectID    string `json:"effectId"`
	Effect      string `json:"effect"`
}

func (EffectRemoved) EventName() string { return EventEffectRemoved }

// BundleLoaded is published after a bundle finishes loading.
type BundleLoaded struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (BundleLoaded) EventName() string { return EventBundleLoaded }

// BundleUnloaded is published after a bundle is unloaded.
type BundleUnloaded struct {
	Name string `json:"name"`
}

func (BundleUnloaded) EventName() string { return EventBundleUnloaded }

// BehaviorExecuted is published when an item or character behavior runs.
type BehaviorExecuted struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Behavior   string `json:"behavior"`
	Result     any    `json:"result"`
}

func (BehaviorExecuted) EventName() string { return EventBehaviorExecuted }

// ItemUsed is published when a character uses an item.
type ItemUsed struct {
	CharacterID string `json:"characterId"`
	ItemID      string `json:"itemId"`
	Template    string `json:"template"`
	Result      any    `json:"result"`
}

func (ItemUsed) EventName() string { return EventItemUsed }

// ToolAuthorize is emitted with EmitWithOutcome before a tool call is routed.
// Listeners return a Decision; any Decision with Allow false, or any listener
// failure, denies the call.
type ToolAuthorize struct {
	Tool         string   `json:"tool"`
	CallerID     string   `json:"callerId"`
	Capabilities []string `json:"capabilities"`
	Required     string   `json:"required"`
}

func (ToolAuthorize) EventName() string { return EventToolAuthorize }

// Decision is the result an authorization listener returns.
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Allow is a granting decision.
func Allow() Decision { return Decision{Allow: true} }

// Deny is a refusing decision with a reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }
