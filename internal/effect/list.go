// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package effect

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/oops"

	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/internal/world"
	"github.com/holomush/simcore/pkg/errutil"
)

// Option configures lists and storage.
type Option func(*options)

type options struct {
	clock  clockwork.Clock
	bus    Publisher
	logger *slog.Logger
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock sets the time source.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithPublisher sets the bus effect lifecycle events are published on.
func WithPublisher(bus Publisher) Option {
	return func(o *options) { o.bus = bus }
}

// WithLogger sets the logger for hook failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// hookCall is a hook invocation collected under the lock and run after it is released.
type hookCall struct {
	hook  string
	fn    Hook
	inst  Instance
	event eventbus.Payload
}

// List is the ordered set of effects on one character.
// It is safe for concurrent use; hooks run outside its lock.
type List struct {
	mu          sync.Mutex
	characterID string
	instances   []*Instance
	store       world.CharacterStore
	opts        options
}

// NewList creates an empty list for a character.
func NewList(characterID string, store world.CharacterStore, opts ...Option) *List {
	return newList(characterID, store, buildOptions(opts))
}

func newList(characterID string, store world.CharacterStore, o options) *List {
	return &List{characterID: characterID, store: store, opts: o}
}

// CharacterID returns the owning character id.
func (l *List) CharacterID() string { return l.characterID }

// Add applies def.
//
// A unique effect that is already active is rejected unless it refreshes, in
// which case the existing instance's AppliedAt is reset. Otherwise, once the
// name has reached MaxStacks (instances for StackSeparate, StackCount for
// StackMerge) the application is rejected. A merge adds a stack to the existing
// instance; anything else creates a new instance and runs OnActivate.
// The returned instance is a copy.
func (l *List) Add(ctx context.Context, def Definition) (Instance, bool) {
	if err := def.Validate(); err != nil {
		errutil.LogErrorContext(ctx, l.opts.logger, "effect rejected", err, "character_id", l.characterID)
		return Instance{}, false
	}

	now := l.opts.clock.Now()

	l.mu.Lock()
	existing := l.byName(def.Name)

	if def.Unique && len(existing) > 0 {
		if !def.Refreshes {
			l.mu.Unlock()
			return Instance{}, false
		}
		inst := existing[0]
		inst.reset(now)
		cp := *inst
		l.mu.Unlock()

		l.publish(ctx, eventbus.EffectRefreshed{CharacterID: l.characterID, EffectID: cp.ID, Effect: cp.Name()})
		return cp, true
	}

	if def.Stacking == StackMerge && len(existing) > 0 {
		inst := existing[0]
		if inst.StackCount >= def.MaxStackCount() {
			l.mu.Unlock()
			return Instance{}, false
		}
		inst.StackCount++
		if def.Refreshes {
			inst.reset(now)
		}
		cp := *inst
		l.mu.Unlock()

		l.publish(ctx, eventbus.EffectApplied{
			CharacterID: l.characterID, EffectID: cp.ID, Effect: cp.Name(), StackCount: cp.StackCount,
		})
		return cp, true
	}

	if len(existing) >= def.MaxStackCount() {
		l.mu.Unlock()
		return Instance{}, false
	}

	inst := newInstance(l.characterID, def, l.opts.clock, now)
	l.instances = append(l.instances, inst)
	cp := *inst
	l.mu.Unlock()

	EffectsActive.Inc()
	l.run(ctx, hookCall{
		hook: "activate",
		fn:   def.Hooks.OnActivate,
		inst: cp,
		event: eventbus.EffectApplied{
			CharacterID: l.characterID, EffectID: cp.ID, Effect: cp.Name(), StackCount: cp.StackCount,
		},
	})
	return cp, true
}

func (l *List) byName(name string) []*Instance {
	var out []*Instance
	for _, inst := range l.instances {
		if inst.Active && inst.Definition.Name == name {
			out = append(out, inst)
		}
	}
	return out
}

// Process advances the list to now: every tick boundary at or before now (and
// not past expiry) fires OnTick, then instances whose duration has elapsed are
// deactivated. Ticks always run before the expiry they coincide with.
func (l *List) Process(ctx context.Context, now time.Time) {
	var calls []hookCall

	l.mu.Lock()
	kept := l.instances[:0]
	for _, inst := range l.instances {
		calls = append(calls, l.dueTicks(inst, now)...)
		if inst.Expired(now) {
			calls = append(calls, l.deactivate(inst, true))
			continue
		}
		kept = append(kept, inst)
	}
	clearTail(l.instances, len(kept))
	l.instances = kept
	l.mu.Unlock()

	l.run(ctx, calls...)
}

func (l *List) dueTicks(inst *Instance, now time.Time) []hookCall {
	def := inst.Definition
	if def.TickInterval <= 0 {
		return nil
	}
	expiresAt, finite := inst.ExpiresAt()

	var calls []hookCall
	for !inst.nextTick.After(now) {
		if finite && inst.nextTick.After(expiresAt) {
			break
		}
		inst.Ticks++
		inst.nextTick = inst.nextTick.Add(def.TickInterval)
		EffectTicks.WithLabelValues(def.Name).Inc()
		calls = append(calls, hookCall{
			hook: "tick",
			fn:   def.Hooks.OnTick,
			inst: *inst,
			event: eventbus.EffectTicked{
				CharacterID: l.characterID, EffectID: inst.ID, Effect: def.Name, Tick: inst.Ticks,
			},
		})
	}
	return calls
}

// deactivate marks inst inactive and returns its OnDeactivate call.
// Caller holds l.mu and drops inst from the list.
func (l *List) deactivate(inst *Instance, expired bool) hookCall {
	inst.Active = false
	EffectsActive.Dec()

	var event eventbus.Payload = eventbus.EffectRemoved{
		CharacterID: l.characterID, EffectID: inst.ID, Effect: inst.Name(),
	}
	if expired {
		event = eventbus.EffectExpired{CharacterID: l.characterID, EffectID: inst.ID, Effect: inst.Name()}
	}
	return hookCall{hook: "deactivate", fn: inst.Definition.Hooks.OnDeactivate, inst: *inst, event: event}
}

func clearTail(s []*Instance, from int) {
	for i := from; i < len(s); i++ {
		s[i] = nil
	}
}

// Cleanup deactivates every expired instance and returns how many were
// removed. Ticks still owed to an expired instance fire before its expiry.
func (l *List) Cleanup(ctx context.Context) int {
	now := l.opts.clock.Now()
	var calls []hookCall
	removed := 0

	l.mu.Lock()
	kept := l.instances[:0]
	for _, inst := range l.instances {
		if inst.Expired(now) {
			calls = append(calls, l.dueTicks(inst, now)...)
			calls = append(calls, l.deactivate(inst, true))
			removed++
			continue
		}
		kept = append(kept, inst)
	}
	clearTail(l.instances, len(kept))
	l.instances = kept
	l.mu.Unlock()

	l.run(ctx, calls...)
	return removed
}

// Remove deactivates the instance with id.
func (l *List) Remove(ctx context.Context, id string) bool {
	return l.removeWhere(ctx, func(inst *Instance) bool { return inst.ID == id }, false) > 0
}

// RemoveByName deactivates every instance named name and returns the count.
func (l *List) RemoveByName(ctx context.Context, name string) int {
	return l.removeWhere(ctx, func(inst *Instance) bool { return inst.Definition.Name == name }, false)
}

// Clear deactivates every instance and returns the count.
func (l *List) Clear(ctx context.Context) int {
	return l.removeWhere(ctx, func(*Instance) bool { return true }, false)
}

func (l *List) removeWhere(ctx context.Context, match func(*Instance) bool, expired bool) int {
	var calls []hookCall

	l.mu.Lock()
	kept := l.instances[:0]
	for _, inst := range l.instances {
		if match(inst) {
			calls = append(calls, l.deactivate(inst, expired))
			continue
		}
		kept = append(kept, inst)
	}
	clearTail(l.instances, len(kept))
	l.instances = kept
	l.mu.Unlock()

	l.run(ctx, calls...)
	return len(calls)
}

// Instances returns copies of the active instances in application order.
func (l *List) Instances() []Instance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Instance, 0, len(l.instances))
	for _, inst := range l.instances {
		out = append(out, *inst)
	}
	return out
}

// Get returns a copy of the instance with id.
func (l *List) Get(id string) (Instance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, inst := range l.instances {
		if inst.ID == id {
			return *inst, true
		}
	}
	return Instance{}, false
}

// Has reports whether an instance named name is active.
func (l *List) Has(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byName(name)) > 0
}

// Len returns the number of active instances.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.instances)
}

// Snapshot renders every instance at the list clock's current time.
func (l *List) Snapshot() []Snapshot {
	now := l.opts.clock.Now()
	insts := l.Instances()
	out := make([]Snapshot, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.Snapshot(now))
	}
	return out
}

// MarshalJSON renders the list snapshot.
func (l *List) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Snapshot())
}

func (l *List) run(ctx context.Context, calls ...hookCall) {
	for _, call := range calls {
		if call.fn != nil {
			target := NewTarget(l.characterID, l.store, l.opts.bus, call.inst.Name())
			if err := invokeHook(ctx, call, target); err != nil {
				HookErrors.WithLabelValues(call.inst.Name(), call.hook).Inc()
				errutil.LogErrorContext(ctx, l.opts.logger, "effect hook failed", err,
					"character_id", l.characterID,
					"effect", call.inst.Name(),
					"hook", call.hook)
			}
		}
		l.publish(ctx, call.event)
	}
}

func invokeHook(ctx context.Context, call hookCall, target *Target) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code(CodeHookError).
				With("effect", call.inst.Name()).
				With("hook", call.hook).
				Errorf("hook panic: %v", r)
		}
	}()
	if err := call.fn(ctx, call.inst, target); err != nil {
		return oops.Code(CodeHookError).
			With("effect", call.inst.Name()).
			With("hook", call.hook).
			Wrap(err)
	}
	return nil
}

func (l *List) publish(ctx context.Context, payload eventbus.Payload) {
	if l.opts.bus != nil && payload != nil {
		l.opts.bus.Publish(ctx, payload)
	}
}
