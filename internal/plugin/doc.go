// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin owns the table of loaded plugins and their load/unload
// pipelines.
//
// A [Registry] maps plugin names to the instance handle and module each
// entry holds. It is not safe for concurrent use: a single goroutine (the
// actor in package actor) owns it, which is what keeps native handles from
// ever being touched concurrently.
package plugin
