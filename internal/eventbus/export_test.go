// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventbus

import "github.com/prometheus/client_golang/prometheus"

// ListenerErrorCounter exposes the per-event failure counter to tests.
func ListenerErrorCounter(event string) prometheus.Counter {
	return listenerErrors.WithLabelValues(event)
}
