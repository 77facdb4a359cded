// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventbus_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/simcore/internal/eventbus"
)

func newBus(t *testing.T) (*eventbus.Bus, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return eventbus.New(eventbus.WithLogger(logger)), &buf
}

func recorder(order *[]string, label string) eventbus.Listener {
	return func(_ context.Context, _ eventbus.Event) (any, error) {
		*order = append(*order, label)
		return nil, nil
	}
}

func TestBus_PriorityOrder(t *testing.T) {
	bus, _ := newBus(t)
	var order []string

	bus.On("tick", recorder(&order, "low"), eventbus.WithPriority(1))
	bus.On("tick", recorder(&order, "high"), eventbus.WithPriority(5))
	bus.On("tick", recorder(&order, "default"))

	bus.Emit(context.Background(), "tick", nil)

	assert.Equal(t, []string{"high", "low", "default"}, order)
}

func TestBus_EqualPriorityKeepsRegistrationOrder(t *testing.T) {
	bus, _ := newBus(t)
	var order []string

	for _, label := range []string{"a", "b", "c", "d"} {
		bus.On("tick", recorder(&order, label), eventbus.WithPriority(3))
	}
	bus.On("tick", recorder(&order, "first"), eventbus.WithPriority(9))

	bus.Emit(context.Background(), "tick", nil)

	assert.Equal(t, []string{"first", "a", "b", "c", "d"}, order)
}

func TestBus_WildcardRunsFirst(t *testing.T) {
	bus, _ := newBus(t)
	var order []string
	var names []string

	bus.On("tick", recorder(&order, "specific"), eventbus.WithPriority(100))
	bus.On(eventbus.Wildcard, func(_ context.Context, ev eventbus.Event) (any, error) {
		order = append(order, "wild-1")
		names = append(names, ev.Name)
		return nil, nil
	})
	bus.On(eventbus.Wildcard, recorder(&order, "wild-2"))

	bus.Emit(context.Background(), "tick", nil)
	bus.Emit(context.Background(), "other", nil)

	assert.Equal(t, []string{"wild-1", "wild-2", "specific", "wild-1", "wild-2"}, order)
	assert.Equal(t, []string{"tick", "other"}, names)
}

func TestBus_OnceFiresExactlyOnce(t *testing.T) {
	bus, _ := newBus(t)
	calls := 0
	bus.Once("tick", func(_ context.Context, _ eventbus.Event) (any, error) {
		calls++
		return nil, nil
	})

	ctx := context.Background()
	bus.Emit(ctx, "tick", nil)
	bus.Emit(ctx, "tick", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.ListenerCount("tick"))
}

func TestBus_OnceSurvivesReentrantEmit(t *testing.T) {
	bus, _ := newBus(t)
	calls := 0
	bus.Once("tick", func(ctx context.Context, _ eventbus.Event) (any, error) {
		calls++
		bus.Emit(ctx, "tick", nil)
		return nil, nil
	})

	bus.Emit(context.Background(), "tick", nil)

	assert.Equal(t, 1, calls)
	assert.False(t, bus.HasListeners("tick"))
}

func TestBus_Off(t *testing.T) {
	bus, _ := newBus(t)
	var order []string
	id := bus.On("tick", recorder(&order, "removed"))
	bus.On("tick", recorder(&order, "kept"))

	assert.True(t, bus.Off("tick", id))
	assert.False(t, bus.Off("tick", id), "second removal finds nothing")

	bus.Emit(context.Background(), "tick", nil)
	assert.Equal(t, []string{"kept"}, order)
}

func TestBus_OffWildcard(t *testing.T) {
	bus, _ := newBus(t)
	id := bus.On(eventbus.Wildcard, recorder(new([]string), "w"))

	assert.Equal(t, 1, bus.ListenerCount(eventbus.Wildcard))
	assert.True(t, bus.Off(eventbus.Wildcard, id))
	assert.Equal(t, 0, bus.ListenerCount(eventbus.Wildcard))
}

func TestBus_RemoveAllListeners(t *testing.T) {
	t.Run("named events only", func(t *testing.T) {
		bus, _ := newBus(t)
		bus.On("a", recorder(new([]string), "a"))
		bus.On("b", recorder(new([]string), "b"))
		bus.On(eventbus.Wildcard, recorder(new([]string), "w"))

		bus.RemoveAllListeners("a")

		assert.Equal(t, []string{"*", "b"}, bus.EventNames())
	})

	t.Run("everything including wildcards", func(t *testing.T) {
		bus, _ := newBus(t)
		bus.On("a", recorder(new([]string), "a"))
		bus.On(eventbus.Wildcard, recorder(new([]string), "w"))

		bus.RemoveAllListeners()

		assert.Empty(t, bus.EventNames())
		assert.False(t, bus.HasListeners(eventbus.Wildcard))
	})
}

func TestBus_FailingListenerDoesNotStopOthers(t *testing.T) {
	bus, logs := newBus(t)
	var order []string

	bus.On("tick", func(_ context.Context, _ eventbus.Event) (any, error) {
		order = append(order, "erroring")
		return nil, errors.New("boom")
	}, eventbus.WithPriority(3))
	bus.On("tick", func(_ context.Context, _ eventbus.Event) (any, error) {
		order = append(order, "panicking")
		panic("kaboom")
	}, eventbus.WithPriority(2))
	bus.On("tick", recorder(&order, "last"), eventbus.WithPriority(1))

	before := testutil.ToFloat64(eventbus.ListenerErrorCounter("tick"))
	require.NotPanics(t, func() {
		bus.Emit(context.Background(), "tick", nil)
	})

	assert.Equal(t, []string{"erroring", "panicking", "last"}, order)
	assert.Contains(t, logs.String(), "event listener failed")
	assert.Contains(t, logs.String(), eventbus.CodeListenerError)
	assert.Equal(t, before+2, testutil.ToFloat64(eventbus.ListenerErrorCounter("tick")))
}

func TestBus_EmitWithResults(t *testing.T) {
	bus, _ := newBus(t)
	bus.On("ask", func(_ context.Context, _ eventbus.Event) (any, error) {
		return "first", nil
	}, eventbus.WithPriority(2))
	bus.On("ask", func(_ context.Context, _ eventbus.Event) (any, error) {
		return nil, nil
	}, eventbus.WithPriority(1))
	bus.On("ask", func(_ context.Context, _ eventbus.Event) (any, error) {
		return "ignored", errors.New("failed")
	})
	bus.On("ask", func(_ context.Context, ev eventbus.Event) (any, error) {
		return ev.Payload, nil
	}, eventbus.WithPriority(-1))

	results := bus.EmitWithResults(context.Background(), "ask", 42)

	assert.Equal(t, []any{"first", 42}, results)
}

func TestBus_EmitWithOutcomeCountsFailures(t *testing.T) {
	bus, _ := newBus(t)
	bus.On("ask", func(_ context.Context, _ eventbus.Event) (any, error) {
		return "yes", nil
	})
	bus.On("ask", func(_ context.Context, _ eventbus.Event) (any, error) {
		return nil, errors.New("failed")
	})
	bus.On("ask", func(_ context.Context, _ eventbus.Event) (any, error) {
		panic("boom")
	})
	bus.On(eventbus.Wildcard, func(_ context.Context, _ eventbus.Event) (any, error) {
		return nil, errors.New("audit log full")
	})

	results, failed := bus.EmitWithOutcome(context.Background(), "ask", nil)

	assert.Equal(t, []any{"yes"}, results)
	assert.Equal(t, 2, failed)
}

func TestBus_EventCarriesPayloadAndTime(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	bus := eventbus.New(eventbus.WithClock(func() time.Time { return fixed }))

	var got eventbus.Event
	bus.On("tick", func(_ context.Context, ev eventbus.Event) (any, error) {
		got = ev
		return nil, nil
	})
	bus.Emit(context.Background(), "tick", "payload")

	assert.Equal(t, "tick", got.Name)
	assert.Equal(t, "payload", got.Payload)
	assert.Equal(t, fixed, got.EmittedAt)
}

func TestBus_ListenerCountAndEventNames(t *testing.T) {
	bus, _ := newBus(t)
	assert.False(t, bus.HasListeners("b"))

	bus.On("b", recorder(new([]string), "1"))
	bus.On("b", recorder(new([]string), "2"))
	bus.On("a", recorder(new([]string), "3"))

	assert.True(t, bus.HasListeners("b"))
	assert.Equal(t, 2, bus.ListenerCount("b"))
	assert.Equal(t, []string{"a", "b"}, bus.EventNames())
}

func TestSubscribe_TypedPayload(t *testing.T) {
	bus, _ := newBus(t)
	var got eventbus.CharacterHealthChanged

	eventbus.Subscribe(bus, func(_ context.Context, p eventbus.CharacterHealthChanged) error {
		got = p
		return nil
	})

	bus.Publish(context.Background(), eventbus.CharacterHealthChanged{
		CharacterID: "c1", Previous: 100, Current: 98, Cause: "poison",
	})

	assert.Equal(t, "c1", got.CharacterID)
	assert.Equal(t, -2, got.Delta())
}

func TestSubscribe_PayloadMismatchIsLogged(t *testing.T) {
	bus, logs := newBus(t)
	called := false
	eventbus.Subscribe(bus, func(_ context.Context, _ eventbus.BundleLoaded) error {
		called = true
		return nil
	})

	bus.Emit(context.Background(), eventbus.EventBundleLoaded, "not a struct")

	assert.False(t, called)
	assert.Contains(t, logs.String(), eventbus.CodePayloadMismatch)
}

func TestBus_ConcurrentUse(t *testing.T) {
	bus, _ := newBus(t)
	var mu sync.Mutex
	count := 0
	bus.On("tick", func(_ context.Context, _ eventbus.Event) (any, error) {
		mu.Lock()
		count++
		mu.Unlock()
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Emit(context.Background(), "tick", nil)
		}()
		go func() {
			defer wg.Done()
			id := bus.On("other", recorder(new([]string), "x"))
			bus.Off("other", id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}
