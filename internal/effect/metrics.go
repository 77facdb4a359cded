// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package effect

import "github.com/prometheus/client_golang/prometheus"

// EffectsActive is the gauge of active effect instances across all characters.
// Use RegisterMetrics to register this with a Prometheus registry.
var EffectsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "simcore_effects_active",
		Help: "Number of active effect instances",
	},
)

// EffectTicks counts periodic ticks per effect name.
// Use RegisterMetrics to register this with a Prometheus registry.
var EffectTicks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "simcore_effect_ticks_total",
		Help: "Total number of effect ticks",
	},
	[]string{"effect"},
)

// HookErrors counts failed or panicking lifecycle hooks.
var HookErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "simcore_effect_hook_errors_total",
		Help: "Total number of effect hooks that returned an error or panicked",
	},
	[]string{"effect", "hook"},
)

// RegisterMetrics registers effect package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(EffectsActive)
	reg.MustRegister(EffectTicks)
	reg.MustRegister(HookErrors)
}
