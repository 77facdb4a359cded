// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventbus

import "github.com/prometheus/client_golang/prometheus"

// eventsEmitted counts emits per event name.
var eventsEmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "simcore_events_emitted_total",
		Help: "Total number of events emitted on the bus",
	},
	[]string{"event"},
)

var listenerErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "simcore_listener_errors_total",
		Help: "Total number of event listener invocations that failed or panicked",
	},
	[]string{"event"},
)

// RegisterMetrics registers event bus metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(eventsEmitted)
	reg.MustRegister(listenerErrors)
}
