// Copyright 2026 The Switchyard Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal persists supervised-process lifecycle events to
// SQLite.
//
// Each spawn, patch, check-in, exit, retry, and shutdown lands as one
// append-only row. The broker's control plane and the CLI's events
// command read the journal to answer "what happened to this service",
// distinguishing a service that never started from one that started
// and then mismatched the protocol.
//
// Writes are fire-and-forget from the supervisor's point of view
// ([Journal.Record] logs failures instead of returning them): the
// journal records supervision, it must never obstruct it.
package journal
