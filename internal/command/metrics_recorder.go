// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import "time"

// MetricsRecorder tracks command execution metrics for a single routed call.
type MetricsRecorder struct {
	startTime     time.Time
	commandName   string
	commandSource string
	status        string
}

// NewMetricsRecorder initializes a recorder for a single call.
func NewMetricsRecorder(name string) *MetricsRecorder {
	return &MetricsRecorder{startTime: time.Now(), commandName: name, status: StatusError}
}

// SetCommandSource sets the command source for metrics.
func (m *MetricsRecorder) SetCommandSource(source string) {
	m.commandSource = source
}

// SetStatus sets the execution status for metrics.
func (m *MetricsRecorder) SetStatus(status string) {
	m.status = status
}

// SetResult derives the status from an envelope.
func (m *MetricsRecorder) SetResult(r Result) {
	if r.Success {
		m.status = StatusSuccess
		return
	}
	m.status = StatusFailure
}

// Record writes the collected metrics if command name is available.
func (m *MetricsRecorder) Record() {
	if m.commandName == "" {
		return
	}

	RecordCommandExecution(m.commandName, m.commandSource, m.status)
	RecordCommandDuration(m.commandName, m.commandSource, time.Since(m.startTime))
}
