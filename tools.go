// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools
// +build tools

// Package main pins test dependencies that only build-tagged suites import.
// See https://go.dev/wiki/Modules#how-can-i-track-tool-dependencies-for-a-module
package main

import (
	// Integration suite (go test -tags integration ./test/...)
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
	// Leak checks in scheduler and runtime tests
	_ "go.uber.org/goleak"
)
