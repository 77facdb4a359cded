// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package effect

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/holomush/simcore/internal/world"
)

// Storage maps character ids to their effect lists. Lists are created on first
// access and live for the lifetime of the process.
type Storage struct {
	mu    sync.RWMutex
	lists map[string]*List
	store world.CharacterStore
	opts  options
}

// NewStorage creates empty storage. Every list it creates shares opts.
func NewStorage(store world.CharacterStore, opts ...Option) *Storage {
	return &Storage{
		lists: make(map[string]*List),
		store: store,
		opts:  buildOptions(opts),
	}
}

// Clock returns the storage time source.
func (s *Storage) Clock() clockwork.Clock { return s.opts.clock }

// Get returns the list for characterID, creating it if needed.
func (s *Storage) Get(characterID string) *List {
	s.mu.RLock()
	l, ok := s.lists[characterID]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.lists[characterID]; ok {
		return l
	}
	l = newList(characterID, s.store, s.opts)
	s.lists[characterID] = l
	return l
}

// Lookup returns the list for characterID without creating one.
func (s *Storage) Lookup(characterID string) (*List, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[characterID]
	return l, ok
}

// Characters returns the ids that have a list, sorted.
func (s *Storage) Characters() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.lists))
	for id := range s.lists {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Storage) snapshot() []*List {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*List, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].characterID < out[j].characterID })
	return out
}

// ProcessAll runs List.Process on every list.
func (s *Storage) ProcessAll(ctx context.Context, now time.Time) {
	for _, l := range s.snapshot() {
		l.Process(ctx, now)
	}
}

// CleanupAll sweeps every list for expired effects and returns the total removed.
func (s *Storage) CleanupAll(ctx context.Context) int {
	removed := 0
	for _, l := range s.snapshot() {
		removed += l.Cleanup(ctx)
	}
	return removed
}

// ActiveCount returns the number of active instances across all lists.
func (s *Storage) ActiveCount() int {
	n := 0
	for _, l := range s.snapshot() {
		n += l.Len()
	}
	return n
}

// Delete clears the character's list, running deactivation hooks, and drops it.
func (s *Storage) Delete(ctx context.Context, characterID string) int {
	s.mu.Lock()
	l, ok := s.lists[characterID]
	delete(s.lists, characterID)
	s.mu.Unlock()

	if !ok {
		return 0
	}
	return l.Clear(ctx)
}

// Clear empties every list and drops them all.
func (s *Storage) Clear(ctx context.Context) int {
	s.mu.Lock()
	lists := s.lists
	s.lists = make(map[string]*List)
	s.mu.Unlock()

	removed := 0
	for _, l := range lists {
		removed += l.Clear(ctx)
	}
	return removed
}
