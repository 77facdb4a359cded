// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package eventbus provides the process-wide priority pub/sub that every other
// runtime component communicates through.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/simcore/pkg/errutil"
)

// Wildcard subscribes a listener to every emitted event.
const Wildcard = "*"

// Event is what a listener receives. Wildcard listeners use Name to tell events apart.
type Event struct {
	Name      string
	Payload   any
	EmittedAt time.Time
}

// Listener handles an event. A non-nil result is collected by EmitWithResults.
// Returned errors and panics are logged and never reach the emitter.
type Listener func(ctx context.Context, ev Event) (any, error)

// ListenerID identifies a registered listener. Go funcs are not comparable, so
// the id is the identity used by Off.
type ListenerID uint64

// Subscriber is the registration half of the bus. Bundles receive a Subscriber
// rather than the bus so the loader can track what they registered.
type Subscriber interface {
	On(event string, l Listener, opts ...SubscribeOption) ListenerID
	Once(event string, l Listener, opts ...SubscribeOption) ListenerID
	Off(event string, id ListenerID) bool
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscription)

// WithPriority sets the listener priority. Higher runs first; the default is 0.
func WithPriority(priority int) SubscribeOption {
	return func(s *subscription) {
		s.priority = priority
	}
}

type subscription struct {
	id       ListenerID
	event    string
	priority int
	listener Listener
}

// Bus is a priority-ordered event bus.
//
// Emit runs listeners sequentially: wildcard listeners first in registration
// order, then the event's listeners by priority (higher first), ties broken by
// registration order. Bus is safe for concurrent use; listener lists are
// snapshotted per emit so listeners may re-enter the bus.
type Bus struct {
	mu        sync.RWMutex
	seq       uint64
	listeners map[string][]*subscription
	wildcards []*subscription
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for listener failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithClock sets the time source stamped on emitted events.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		b.now = now
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[string][]*subscription),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers a listener for event. Use Wildcard to receive every event.
func (b *Bus) On(event string, l Listener, opts ...SubscribeOption) ListenerID {
	sub := &subscription{event: event, listener: l}
	for _, opt := range opts {
		opt(sub)
	}
	b.insert(sub)
	return sub.id
}

// Once registers a listener that runs at most once. The wrapper claims its
// single run before invoking l, so a re-entrant emit of the same event skips it,
// and deregisters itself after l returns.
func (b *Bus) Once(event string, l Listener, opts ...SubscribeOption) ListenerID {
	sub := &subscription{event: event}
	for _, opt := range opts {
		opt(sub)
	}
	var fired atomic.Bool
	sub.listener = func(ctx context.Context, ev Event) (any, error) {
		if !fired.CompareAndSwap(false, true) {
			return nil, nil
		}
		defer b.Off(event, sub.id)
		return l(ctx, ev)
	}
	b.insert(sub)
	return sub.id
}

func (b *Bus) insert(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sub.id = ListenerID(b.seq)

	if sub.event == Wildcard {
		b.wildcards = append(b.wildcards, sub)
		return
	}

	subs := b.listeners[sub.event]
	// First position holding a strictly lower priority; equal priorities keep
	// registration order.
	idx := sort.Search(len(subs), func(i int) bool {
		return subs[i].priority < sub.priority
	})
	subs = append(subs, nil)
	copy(subs[idx+1:], subs[idx:])
	subs[idx] = sub
	b.listeners[sub.event] = subs
}

// Off removes the listener with the given id from event.
func (b *Bus) Off(event string, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if event == Wildcard {
		var removed bool
		b.wildcards, removed = without(b.wildcards, id)
		return removed
	}

	subs, removed := without(b.listeners[event], id)
	if len(subs) == 0 {
		delete(b.listeners, event)
	} else {
		b.listeners[event] = subs
	}
	return removed
}

func without(subs []*subscription, id ListenerID) ([]*subscription, bool) {
	for i, s := range subs {
		if s.id == id {
			out := make([]*subscription, 0, len(subs)-1)
			out = append(out, subs[:i]...)
			return append(out, subs[i+1:]...), true
		}
	}
	return subs, false
}

// RemoveAllListeners clears the named events. With no arguments it clears
// every event, wildcard listeners included.
func (b *Bus) RemoveAllListeners(events ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(events) == 0 {
		b.listeners = make(map[string][]*subscription)
		b.wildcards = nil
		return
	}
	for _, event := range events {
		if event == Wildcard {
			b.wildcards = nil
			continue
		}
		delete(b.listeners, event)
	}
}

// Emit delivers payload to the listeners of event. It always returns once every
// listener has run; listener failures are logged and counted.
func (b *Bus) Emit(ctx context.Context, event string, payload any) {
	_, _ = b.dispatch(ctx, event, payload, false)
}

// Publish emits a typed payload under its own event name.
func (b *Bus) Publish(ctx context.Context, payload Payload) {
	_, _ = b.dispatch(ctx, payload.EventName(), payload, false)
}

// EmitWithResults is Emit that also collects every non-nil listener result,
// in invocation order. Failed listeners contribute nothing.
func (b *Bus) EmitWithResults(ctx context.Context, event string, payload any) []any {
	results, _ := b.dispatch(ctx, event, payload, true)
	return results
}

// EmitWithOutcome is EmitWithResults that also reports how many of the
// event's own listeners returned an error or panicked. Wildcard failures are
// logged but not counted.
func (b *Bus) EmitWithOutcome(ctx context.Context, event string, payload any) (results []any, failed int) {
	return b.dispatch(ctx, event, payload, true)
}

func (b *Bus) dispatch(ctx context.Context, event string, payload any, collect bool) ([]any, int) {
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.wildcards)+len(b.listeners[event]))
	subs = append(subs, b.wildcards...)
	wildcards := len(subs)
	subs = append(subs, b.listeners[event]...)
	b.mu.RUnlock()

	eventsEmitted.WithLabelValues(event).Inc()

	ev := Event{Name: event, Payload: payload, EmittedAt: b.now()}
	var results []any
	failed := 0
	for i, sub := range subs {
		result, err := b.invoke(ctx, sub, ev)
		if err != nil {
			if i >= wildcards {
				failed++
			}
			listenerErrors.WithLabelValues(event).Inc()
			errutil.LogErrorContext(ctx, b.logger, "event listener failed", err,
				"event", event,
				"listener_id", uint64(sub.id))
			continue
		}
		if collect && result != nil {
			results = append(results, result)
		}
	}
	return results, failed
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, ev Event) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.Code(CodeListenerError).
				With("event", ev.Name).
				With("listener_id", uint64(sub.id)).
				Errorf("listener panic: %v", r)
		}
	}()
	result, err = sub.listener(ctx, ev)
	if err != nil {
		if _, ok := oops.AsOops(err); !ok {
			err = oops.Code(CodeListenerError).With("event", ev.Name).Wrap(err)
		}
	}
	return result, err
}

// HasListeners reports whether event has any listeners of its own. Use Wildcard
// to ask about wildcard listeners.
func (b *Bus) HasListeners(event string) bool {
	return b.ListenerCount(event) > 0
}

// ListenerCount returns the number of listeners registered for event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event == Wildcard {
		return len(b.wildcards)
	}
	return len(b.listeners[event])
}

// EventNames returns the sorted names of events with listeners, including
// Wildcard when wildcard listeners exist.
func (b *Bus) EventNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.listeners)+1)
	for name := range b.listeners {
		names = append(names, name)
	}
	if len(b.wildcards) > 0 {
		names = append(names, Wildcard)
	}
	sort.Strings(names)
	return names
}

// Subscribe registers a listener that receives payloads of type T, which must be
// a value type whose zero value reports the event name.
func Subscribe[T Payload](sub Subscriber, fn func(ctx context.Context, payload T) error, opts ...SubscribeOption) ListenerID {
	var zero T
	event := zero.EventName()
	return sub.On(event, func(ctx context.Context, ev Event) (any, error) {
		payload, ok := ev.Payload.(T)
		if !ok {
			return nil, oops.Code(CodePayloadMismatch).
				With("event", event).
				Errorf("unexpected payload %s for event %s", fmt.Sprintf("%T", ev.Payload), event)
		}
		return nil, fn(ctx, payload)
	}, opts...)
}
