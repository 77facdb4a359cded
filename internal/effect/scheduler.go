// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package effect

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Default scheduler cadences.
const (
	DefaultResolution    = 250 * time.Millisecond
	DefaultSweepInterval = 30 * time.Second
)

// Scheduler drives a Storage: every resolution it processes ticks and expiry
// for all lists, and every sweep interval it runs a cleanup pass.
type Scheduler struct {
	storage    *Storage
	resolution time.Duration
	sweep      time.Duration
	logger     *slog.Logger
}

// NewScheduler creates a scheduler. Non-positive intervals fall back to the defaults.
func NewScheduler(storage *Storage, resolution, sweep time.Duration, logger *slog.Logger) *Scheduler {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	if sweep <= 0 {
		sweep = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{storage: storage, resolution: resolution, sweep: sweep, logger: logger}
}

// Run blocks until ctx is cancelled. It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.storage == nil {
		return oops.Code(CodeInvalidEffect).Errorf("scheduler has no storage")
	}
	clock := s.storage.Clock()

	process := clock.NewTicker(s.resolution)
	defer process.Stop()
	sweep := clock.NewTicker(s.sweep)
	defer sweep.Stop()

	s.logger.Info("effect scheduler started",
		"resolution", s.resolution.String(),
		"sweep_interval", s.sweep.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("effect scheduler stopped")
			return nil
		case <-process.Chan():
			s.storage.ProcessAll(ctx, clock.Now())
		case <-sweep.Chan():
			if removed := s.storage.CleanupAll(ctx); removed > 0 {
				s.logger.Debug("effect sweep removed expired effects", "removed", removed)
			}
		}
	}
}
