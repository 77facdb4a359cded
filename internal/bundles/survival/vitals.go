// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package survival

import (
	"context"

	"github.com/holomush/simcore/internal/effect"
	"github.com/holomush/simcore/internal/eventbus"
)

// PanicThreshold is the health at or below which a character panics.
const PanicThreshold = 20

// vitals applies panic when health drops through PanicThreshold.
type vitals struct {
	deps Deps
}

func (v *vitals) Init(_ context.Context, sub eventbus.Subscriber) error {
	eventbus.Subscribe(sub, v.onHealthChanged)
	return nil
}

func (v *vitals) onHealthChanged(ctx context.Context, p eventbus.CharacterHealthChanged) error {
	if p.Current <= 0 || p.Current > PanicThreshold || p.Previous <= PanicThreshold {
		return nil
	}
	def, err := v.deps.Catalog.Definition("panic", effect.Params{})
	if err != nil {
		return err
	}
	if _, ok := v.deps.Effects.Get(p.CharacterID).Add(ctx, def); ok {
		v.deps.Logger.InfoContext(ctx, "character panicked", "character_id", p.CharacterID, "health", p.Current)
	}
	return nil
}
