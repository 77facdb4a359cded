// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/holomush/simcore/internal/eventbus"
	"github.com/holomush/simcore/internal/world"
	"github.com/holomush/simcore/pkg/errutil"
)

// debugLog logs every event at debug level.
func debugLog(logger *slog.Logger) func(ctx context.Context, sub eventbus.Subscriber) error {
	return func(_ context.Context, sub eventbus.Subscriber) error {
		sub.On(eventbus.Wildcard, func(ctx context.Context, ev eventbus.Event) (any, error) {
			logger.DebugContext(ctx, "event", "event", ev.Name, "payload", ev.Payload)
			return nil, nil
		}, eventbus.WithPriority(100))
		return nil
	}
}

const memoryAttempts = 3

// memoryWriter records character memories for effect and vitals events.
// Write failures are logged and never reach the emitter.
type memoryWriter struct {
	memories world.MemoryService
	logger   *slog.Logger
	backoff  time.Duration
}

func (m *memoryWriter) Init(_ context.Context, sub eventbus.Subscriber) error {
	eventbus.Subscribe(sub, func(ctx context.Context, p eventbus.EffectApplied) error {
		content := fmt.Sprintf("Came under %s.", p.Effect)
		if p.StackCount > 1 {
			content = fmt.Sprintf("Came under %s (x%d).", p.Effect, p.StackCount)
		}
		m.action(ctx, p.CharacterID, content)
		return nil
	})
	eventbus.Subscribe(sub, func(ctx context.Context, p eventbus.EffectExpired) error {
		m.action(ctx, p.CharacterID, fmt.Sprintf("%s wore off.", p.Effect))
		return nil
	})
	eventbus.Subscribe(sub, func(ctx context.Context, p eventbus.EffectRemoved) error {
		m.action(ctx, p.CharacterID, fmt.Sprintf("%s was cured.", p.Effect))
		return nil
	})
	eventbus.Subscribe(sub, func(ctx context.Context, p eventbus.CharacterHealthChanged) error {
		if p.Current == 0 && p.Previous > 0 {
			m.write(ctx, p.CharacterID, "Collapsed from my injuries.", m.memories.AddLongMemory)
		}
		return nil
	})
	return nil
}

func (m *memoryWriter) action(ctx context.Context, characterID, content string) {
	m.write(ctx, characterID, content, m.memories.AddActionMemory)
}

type addMemory func(ctx context.Context, characterID, content string) (*world.Memory, error)

func (m *memoryWriter) write(ctx context.Context, characterID, content string, add addMemory) {
	base := m.backoff
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	backoff := retry.WithMaxRetries(memoryAttempts-1, retry.NewExponential(base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := add(ctx, characterID, content)
		var invalid *world.ValidationError
		if err != nil && !errors.As(err, &invalid) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		errutil.LogErrorContext(ctx, m.logger, "failed to record memory", err, "character_id", characterID)
	}
}
