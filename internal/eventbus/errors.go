// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventbus

// Error codes attached to listener failures.
const (
	CodeListenerError   = "LISTENER_ERROR"
	CodePayloadMismatch = "PAYLOAD_MISMATCH"
)
